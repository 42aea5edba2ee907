package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// Config bounds how often and how fast an operation is retried.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Once runs an operation a single time.
func Once() Config {
	return Config{MaxAttempts: 1}
}

// DefaultConfig is used for transport hiccups around submissions.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

func (c Config) backOff(ctx context.Context) backoff.BackOff {
	if c.MaxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	b := backoff.NewExponentialBackOff()
	if c.BaseDelay > 0 {
		b.InitialInterval = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		b.MaxInterval = c.MaxDelay
	}
	if c.Multiplier >= 1 {
		b.Multiplier = c.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxAttempts-1)), ctx)
}

// IsRetryable reports whether an error may go away on a second try.
type IsRetryable func(error) bool

// Do runs fn until it succeeds, returns an error isRetryable rejects, or the
// attempts run out. It returns the number of attempts made.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error, isRetryable IsRetryable) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		err := fn(attempts)
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		log.Warnf("attempt %d/%d failed, retrying in %v: %v", attempts, cfg.MaxAttempts, delay, err)
	}

	err := backoff.RetryNotify(op, cfg.backOff(ctx), notify)
	if err != nil && attempts > 1 {
		return attempts, fmt.Errorf("all %d attempts failed, last error: %w", attempts, err)
	}

	return attempts, err
}

var transientMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"timeout",
	"network is unreachable",
	"no such host",
	"eof",
}

var nonceMessages = []string{
	"nonce too low",
	"replacement transaction underpriced",
}

// the node already holds this transaction
var broadcastMessages = []string{
	"already known",
	"known transaction",
}

// TransactionIsRetryable accepts send failures: transport errors before the
// transaction reached the node and nonce races. Ledger rejections and any
// failure after a broadcast are permanent.
func TransactionIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrReceiptUnknown) {
		return false
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, broadcastMessages) {
		return false
	}
	if containsAny(msg, nonceMessages) {
		return true
	}
	if errors.Is(err, types.ErrSubmissionRejected) || errors.Is(err, types.ErrRegistrationReverted) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return containsAny(msg, transientMessages)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
