package ledger

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a state-mutating call is attempted
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy makes three attempts, 500ms then 1s apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		Multiplier:     2.0,
	}
}

// Backoff returns the delay before attempt n+1, counting from zero
func (p RetryPolicy) Backoff(n int) time.Duration {
	return time.Duration(float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(n)))
}

// IsTransient reports whether err is a transport failure worth retrying.
// Business-rule failures never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, ErrTokenAlreadyIssued) ||
		errors.Is(err, ErrTokenNotIssued) ||
		errors.Is(err, ErrTokenAlreadyUsed) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrReceiptTimeout) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError ||
			httpErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// IsRetryable reports whether a caller may safely repeat the whole
// operation. A receipt timeout is not retried internally because the
// transaction may still be mined, but the client can try again.
func IsRetryable(err error) bool {
	return IsTransient(err) || errors.Is(err, ErrReceiptTimeout)
}

func withRetry(ctx context.Context, policy RetryPolicy, log *zap.Logger, op string, fn func(context.Context) (*TxReceipt, error)) (*TxReceipt, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		receipt, err := fn(ctx)
		if err == nil {
			return receipt, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == attempts-1 {
			break
		}

		delay := policy.Backoff(attempt)
		log.Warn("ledger call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}
