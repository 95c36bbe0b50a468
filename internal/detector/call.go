package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig controls retries of transient detector errors.
type RetryConfig struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff cap
}

// DefaultRetryConfig returns the retry configuration used when none is set.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Outcome is the result of Call.
type Outcome struct {
	Result   RawResult
	Attempts int
	Err      *Error // nil on success
}

// Call invokes d. Each attempt is bounded by timeout; transient errors are
// retried with exponential backoff, permanent errors and timeouts are not.
func Call(ctx context.Context, d Detector, req Request, timeout time.Duration, rc RetryConfig) Outcome {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.InitialDelay <= 0 {
		rc.InitialDelay = DefaultRetryConfig().InitialDelay
	}
	if rc.MaxDelay < rc.InitialDelay {
		rc.MaxDelay = rc.InitialDelay
	}

	backoff := retry.NewExponential(rc.InitialDelay)
	backoff = retry.WithCappedDuration(rc.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(rc.MaxAttempts-1), backoff)

	var out Outcome
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out.Attempts++
		res, err := callOnce(ctx, d, req, timeout)
		if err == nil {
			out.Result = res
			return nil
		}
		de := Classify(req.Check, err)
		if de.Kind == KindTransient {
			return retry.RetryableError(de)
		}
		return de
	})
	if err != nil {
		out.Err = Classify(req.Check, err)
	}
	return out
}

type callResult struct {
	res RawResult
	err error
}

// callOnce runs a single attempt. The detector runs in its own goroutine so a
// detector that ignores ctx cannot hold the caller past the timeout.
func callOnce(ctx context.Context, d Detector, req Request, timeout time.Duration) (RawResult, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: Permanent(fmt.Errorf("detector %s panicked: %v", d.Name(), r))}
			}
		}()
		res, err := d.Detect(callCtx, req)
		done <- callResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && callCtx.Err() != nil {
			return RawResult{}, Timeout(fmt.Errorf("detector %s exceeded %s: %w", d.Name(), timeout, r.err))
		}
		return r.res, r.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return RawResult{}, err
		}
		return RawResult{}, Timeout(fmt.Errorf("detector %s returned no result within %s", d.Name(), timeout))
	}
}
