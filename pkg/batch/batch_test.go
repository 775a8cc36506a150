package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cedrospay/agentpay/pkg/payment"
)

type fakePayer struct {
	inFlight  atomic.Int32
	maxInFlight atomic.Int32
	failWallet  string
	delay       time.Duration
}

func (p *fakePayer) Pay(ctx context.Context, req payment.Request) (payment.Result, error) {
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		prevMax := p.maxInFlight.Load()
		if cur <= prevMax || p.maxInFlight.CompareAndSwap(prevMax, cur) {
			break
		}
	}

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	if req.WalletID == p.failWallet {
		return payment.Result{Success: false, Status: payment.StatusFailed, Error: "simulated failure"}, nil
	}
	return payment.Result{Success: true, Status: payment.StatusCompleted}, nil
}

func TestProcessor_Run_PreservesOrder(t *testing.T) {
	payer := &fakePayer{}
	p := New(payer, 4)

	reqs := make([]payment.Request, 10)
	for i := range reqs {
		reqs[i] = payment.Request{WalletID: "wallet", Recipient: "0xabc"}
	}

	results := p.Run(context.Background(), reqs)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.True(t, r.Result.Success)
	}
}

func TestProcessor_Run_BoundsConcurrency(t *testing.T) {
	payer := &fakePayer{delay: 10 * time.Millisecond}
	p := New(payer, 2)

	reqs := make([]payment.Request, 8)
	for i := range reqs {
		reqs[i] = payment.Request{WalletID: "wallet"}
	}

	p.Run(context.Background(), reqs)
	assert.LessOrEqual(t, payer.maxInFlight.Load(), int32(2))
}

func TestProcessor_Run_SeparatesSuccessAndFailure(t *testing.T) {
	payer := &fakePayer{failWallet: "bad"}
	p := New(payer, 3)

	reqs := []payment.Request{
		{WalletID: "good"},
		{WalletID: "bad"},
		{WalletID: "good"},
	}

	results := p.Run(context.Background(), reqs)
	assert.Len(t, Succeeded(results), 2)
	assert.Len(t, Failed(results), 1)
}
