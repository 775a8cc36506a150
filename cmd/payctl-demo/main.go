// Command payctl-demo drives a single payment through the Payment Facade
// against an in-memory wallet provider, for local exploration of the
// router/guard/trust pipeline without a real custodial backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/cedrospay/agentpay/internal/logger"
	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payctl"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

func main() {
	var (
		walletID  = flag.String("wallet", "demo-wallet", "wallet id to pay from")
		recipient = flag.String("recipient", "0x000000000000000000000000000000000000aa", "recipient address")
		amount    = flag.String("amount", "1.00", "amount in major units (e.g. USDC)")
		balance   = flag.String("balance", "100.00", "starting wallet balance in major units")
		chain     = flag.String("network", string(network.BaseMainnet), "source network for the demo wallet")
	)
	flag.Parse()

	appLog := logger.New(logger.Config{Level: "info", Format: "console", Service: "payctl-demo", Environment: "local"})
	ctx := logger.WithContext(context.Background(), appLog)

	asset, err := money.GetAsset("USDC")
	if err != nil {
		log.Fatalf("load asset: %v", err)
	}

	provider := wallet.NewMemoryProvider()
	provider.RegisterWallet(wallet.Wallet{
		ID:         *walletID,
		Address:    "0x000000000000000000000000000000000000ff",
		Blockchain: network.Network(*chain),
		State:      wallet.StateLive,
	}, map[string]string{"USDC": *balance})

	facade, err := payctl.New(payctl.WithWalletProvider(provider))
	if err != nil {
		log.Fatalf("build facade: %v", err)
	}
	defer facade.Close()

	amt, err := money.FromMajor(asset, *amount)
	if err != nil {
		log.Fatalf("parse amount: %v", err)
	}

	result, err := facade.Pay(ctx, payment.Request{
		WalletID:  *walletID,
		Recipient: *recipient,
		Amount:    amt,
	})
	if err != nil {
		log.Fatalf("pay: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("encode result: %v", err)
	}
	fmt.Println(string(out))
}
