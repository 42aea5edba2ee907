package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/retry"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
	"github.com/GPTx-global/flightsurety-oracle/oracle/verdict"
)

// DefaultGasLimit is the gas ceiling for submitOracleResponse.
const DefaultGasLimit = 200000

// Recorder observes finished attempts.
type Recorder interface {
	Record(types.SubmissionAttempt)
}

type Option func(*Dispatcher)

func WithGasLimit(limit uint64) Option {
	return func(d *Dispatcher) {
		if limit > 0 {
			d.gasLimit = limit
		}
	}
}

// WithTimeout bounds each submission attempt. Zero means no bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

func WithRetry(cfg retry.Config) Option {
	return func(d *Dispatcher) { d.retry = cfg }
}

// WithMaxInFlight caps concurrent submissions. Zero means unbounded.
func WithMaxInFlight(n int64) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(n)
		} else {
			d.sem = nil
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// Dispatcher submits one response per matched oracle. Submissions are
// independent: a failure of one never affects the others.
type Dispatcher struct {
	gw       ledger.Gateway
	source   verdict.Source
	gasLimit uint64
	timeout  time.Duration
	retry    retry.Config
	sem      *semaphore.Weighted
	recorder Recorder

	wg sync.WaitGroup
}

func New(gw ledger.Gateway, source verdict.Source, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gw:       gw,
		source:   source,
		gasLimit: DefaultGasLimit,
		retry:    retry.Once(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Submit hands the event off for background dispatch and returns at once.
func (d *Dispatcher) Submit(ctx context.Context, oracles []types.OracleIdentity, event types.QueryEvent) {
	if len(oracles) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.DispatchAll(ctx, oracles, event)
	}()
}

// Wait blocks until every handed-off dispatch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// DispatchAll submits for every oracle concurrently and returns the attempts
// in oracle order.
func (d *Dispatcher) DispatchAll(ctx context.Context, oracles []types.OracleIdentity, event types.QueryEvent) []types.SubmissionAttempt {
	attempts := make([]types.SubmissionAttempt, len(oracles))
	if len(oracles) == 0 {
		return attempts
	}

	var wg sync.WaitGroup
	for i, oracle := range oracles {
		wg.Add(1)
		go func(i int, oracle types.OracleIdentity) {
			defer wg.Done()
			attempts[i] = d.Dispatch(ctx, oracle, event)
		}(i, oracle)
	}
	wg.Wait()

	var accepted, pending int
	for _, a := range attempts {
		switch a.Outcome {
		case types.Accepted:
			accepted++
		case types.Pending:
			pending++
		}
	}
	log.Infof("dispatched %s: %d accepted, %d unconfirmed, %d rejected", event, accepted, pending, len(attempts)-accepted-pending)

	return attempts
}

// Dispatch submits one oracle's response. It never returns an error; the
// outcome is in the attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, oracle types.OracleIdentity, event types.QueryEvent) (attempt types.SubmissionAttempt) {
	attempt = types.SubmissionAttempt{
		Oracle:    oracle.Clone(),
		Event:     event,
		Outcome:   types.Pending,
		StartedAt: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			attempt.Outcome = types.Rejected
			attempt.Err = fmt.Errorf("panic during submission: %v", r)
			log.Errorf("oracle %s: %v", oracle.Address.Hex(), attempt.Err)
		}
		attempt.FinishedAt = time.Now()
		if d.recorder != nil {
			d.recorder.Record(attempt)
		}
	}()

	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			attempt.Outcome = types.Rejected
			attempt.Err = err
			return attempt
		}
		defer d.sem.Release(1)
	}

	v, err := d.source.Verdict(ctx, oracle, event)
	if err != nil {
		attempt.Outcome = types.Rejected
		attempt.Err = errorsmod.Wrapf(types.ErrVerdictSource, "oracle %s: %v", oracle.Address.Hex(), err)
		log.Errorf("failed to get verdict for %s: %v", oracle.Address.Hex(), err)
		return attempt
	}
	attempt.Verdict = v

	resp := ledger.NewResponse(event, v)
	var txHash common.Hash
	attempt.Attempts, err = retry.Do(ctx, d.retry, func(int) error {
		attemptCtx, cancel := d.attemptContext(ctx)
		defer cancel()

		hash, submitErr := d.gw.SubmitResponse(attemptCtx, resp, oracle.Address, d.gasLimit)
		txHash = hash
		return submitErr
	}, retry.TransactionIsRetryable)

	attempt.TxHash = txHash
	if errors.Is(err, types.ErrReceiptUnknown) {
		// sent but unconfirmed: the vote may still land, so it stays pending
		attempt.Err = err
		log.Warnf("oracle %s response %s sent in %s, receipt unknown: %v", oracle.Address.Hex(), v, txHash.Hex(), err)
		return attempt
	}
	if err != nil {
		attempt.Outcome = types.Rejected
		attempt.Err = err
		log.Errorf("oracle %s response %s rejected: %v", oracle.Address.Hex(), v, err)
		return attempt
	}

	attempt.Outcome = types.Accepted
	log.Debugf("oracle %s responded %s for %s in %s", oracle.Address.Hex(), v, event.Flight, txHash.Hex())

	return attempt
}

func (d *Dispatcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return context.WithCancel(ctx)
}
