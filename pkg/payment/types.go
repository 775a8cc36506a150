// Package payment holds the data model shared across the router, guard
// chain, intents, and ledger: payment requests/results, ledger entries, and
// the status/method enumerations every subsystem tags its records with.
package payment

import (
	"time"

	"github.com/cedrospay/agentpay/internal/money"
)

// Method identifies which protocol adapter executed (or would execute) a payment.
type Method string

const (
	MethodTransfer   Method = "TRANSFER"
	MethodX402       Method = "X402"
	MethodCrossChain Method = "CROSSCHAIN"
)

// Status is the terminal/non-terminal lifecycle state of a payment result
// or ledger entry. Transitions form a DAG rooted at PENDING.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusBlocked    Status = "BLOCKED"
)

// Request is a caller's payment instruction: the input to Facade.Pay.
type Request struct {
	WalletID        string
	Recipient       string
	Amount          money.Money
	DestinationChain string // network identifier string; empty = infer from recipient/source
	WalletSetID     string
	Purpose         string
	IdempotencyKey  string
	Metadata        map[string]interface{}
	WaitForCompletion bool
	Timeout         time.Duration
	FeeLevel        string
}

// Result is the structured outcome of a Pay or adapter Execute call.
type Result struct {
	Success           bool
	TransactionID     string
	BlockchainTx      string
	Amount            money.Money
	Recipient         string
	Method            Method
	Status            Status
	Error             string
	GuardsPassed      []string
	Metadata          map[string]interface{}
	ResourceData      map[string]interface{}
}

// SimulationResult is the best-effort, non-mutating outcome of Facade.Simulate.
type SimulationResult struct {
	WouldSucceed  bool
	Route         Method
	EstimatedFee  *money.Money
	Reason        string
}

// EntryType classifies a ledger entry's origin.
type EntryType string

const (
	EntryTypePayment  EntryType = "PAYMENT"
	EntryTypeTransfer EntryType = "TRANSFER"
	EntryTypeIntent   EntryType = "INTENT"
	EntryTypeCCTP     EntryType = "CCTP"
)

// LedgerEntry is an append-once record; only Status, TxHash, and Metadata
// mutate in place after creation via Ledger.UpdateStatus.
type LedgerEntry struct {
	ID          string
	Timestamp   time.Time
	WalletID    string
	WalletSetID string
	Recipient   string
	Amount      money.Money
	EntryType   EntryType
	Status      Status
	TxHash      string
	Method      Method
	Purpose     string
	Metadata    map[string]interface{}
}

// Filter selects ledger entries for Ledger.Query.
type Filter struct {
	WalletID    string
	WalletSetID string
	Recipient   string
	EntryType   EntryType
	Status      Status
	FromDate    time.Time
	ToDate      time.Time
	Limit       int
}
