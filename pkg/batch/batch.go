// Package batch fans a slice of payment requests out across a bounded pool
// of workers, each driving one request through the full Payment Facade
// pipeline independently, and collects results back in request order. It
// is the concrete home for the system diagram's "Batch Processor" box.
package batch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cedrospay/agentpay/pkg/payment"
)

// Payer is the narrow slice of payctl.Facade the batch processor drives.
type Payer interface {
	Pay(ctx context.Context, req payment.Request) (payment.Result, error)
}

// ItemResult pairs one request's outcome with its original index, so
// callers can recover which request a failure belongs to without relying
// on result ordering.
type ItemResult struct {
	Index   int
	Request payment.Request
	Result  payment.Result
	Err     error
}

// Processor runs payment requests through a Payer with bounded concurrency.
type Processor struct {
	payer       Payer
	concurrency int
	logger      zerolog.Logger
}

// Option customizes Processor construction.
type Option func(*Processor)

// WithLogger sets the processor's structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// New builds a Processor. concurrency caps how many requests execute at
// once; values ≤ 0 default to 1 (fully sequential).
func New(payer Payer, concurrency int, opts ...Option) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	p := &Processor{payer: payer, concurrency: concurrency, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every request in reqs, at most p.concurrency at a time, and
// returns one ItemResult per request in the same order as reqs. A request
// whose context is cancelled or whose Pay call errors still yields an
// ItemResult (with Err set) rather than aborting the remaining batch.
func (p *Processor) Run(ctx context.Context, reqs []payment.Request) []ItemResult {
	results := make([]ItemResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, r payment.Request) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = ItemResult{Index: idx, Request: r, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			result, err := p.payer.Pay(ctx, r)
			if err != nil {
				p.logger.Error().Err(err).Int("index", idx).Str("walletID", r.WalletID).Msg("batch: payment failed")
			}
			results[idx] = ItemResult{Index: idx, Request: r, Result: result, Err: err}
		}(i, req)
	}

	wg.Wait()
	return results
}

// Succeeded filters results to those whose Result.Success is true.
func Succeeded(results []ItemResult) []ItemResult {
	out := make([]ItemResult, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.Result.Success {
			out = append(out, r)
		}
	}
	return out
}

// Failed filters results to those that errored or did not succeed.
func Failed(results []ItemResult) []ItemResult {
	out := make([]ItemResult, 0, len(results))
	for _, r := range results {
		if r.Err != nil || !r.Result.Success {
			out = append(out, r)
		}
	}
	return out
}
