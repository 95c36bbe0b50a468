package detector

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vidguard/internal/moderation"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func countingDetector(check moderation.CheckType, fn func(n int32) (RawResult, error)) (Detector, *atomic.Int32) {
	var calls atomic.Int32
	return Func{CheckType: check, Fn: func(ctx context.Context, req Request) (RawResult, error) {
		return fn(calls.Add(1))
	}}, &calls
}

func TestCallRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	d, calls := countingDetector(moderation.CheckNudity, func(n int32) (RawResult, error) {
		if n < 3 {
			return RawResult{}, Transient(fmt.Errorf("model warming up"))
		}
		return RawResult{Score: 0.4, Scale: ScaleUnit}, nil
	})

	out := Call(context.Background(), d, Request{Check: moderation.CheckNudity}, time.Second, fastRetry(3))
	require.Nil(t, out.Err)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.InDelta(t, 0.4, out.Result.Score, 1e-9)
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	d, calls := countingDetector(moderation.CheckFraud, func(int32) (RawResult, error) {
		return RawResult{}, fmt.Errorf("connection reset")
	})

	out := Call(context.Background(), d, Request{Check: moderation.CheckFraud}, time.Second, fastRetry(2))
	require.NotNil(t, out.Err)
	assert.Equal(t, KindTransient, out.Err.Kind)
	assert.Equal(t, moderation.CheckFraud, out.Err.Check)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, out.Attempts)
}

func TestCallDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	d, calls := countingDetector(moderation.CheckCopyright, func(int32) (RawResult, error) {
		return RawResult{}, Permanent(fmt.Errorf("unsupported codec"))
	})

	out := Call(context.Background(), d, Request{Check: moderation.CheckCopyright}, time.Second, fastRetry(5))
	require.NotNil(t, out.Err)
	assert.Equal(t, KindPermanent, out.Err.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallTimeoutIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	d := Func{CheckType: moderation.CheckBlur, Fn: func(ctx context.Context, req Request) (RawResult, error) {
		calls.Add(1)
		<-ctx.Done()
		return RawResult{}, ctx.Err()
	}}

	out := Call(context.Background(), d, Request{Check: moderation.CheckBlur}, 20*time.Millisecond, fastRetry(3))
	require.NotNil(t, out.Err)
	assert.Equal(t, KindTimeout, out.Err.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallTimeoutWithUncooperativeDetector(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	d := Func{CheckType: moderation.CheckBlur, Fn: func(ctx context.Context, req Request) (RawResult, error) {
		<-release
		return RawResult{}, nil
	}}

	start := time.Now()
	out := Call(context.Background(), d, Request{Check: moderation.CheckBlur}, 20*time.Millisecond, fastRetry(1))
	require.NotNil(t, out.Err)
	assert.Equal(t, KindTimeout, out.Err.Kind)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCallRecoversPanics(t *testing.T) {
	t.Parallel()

	d := Func{CheckType: moderation.CheckNudity, Fn: func(ctx context.Context, req Request) (RawResult, error) {
		panic("nil frame buffer")
	}}

	out := Call(context.Background(), d, Request{Check: moderation.CheckNudity}, time.Second, fastRetry(3))
	require.NotNil(t, out.Err)
	assert.Equal(t, KindPermanent, out.Err.Kind)
	assert.Contains(t, out.Err.Error(), "panicked")
	assert.Equal(t, 1, out.Attempts)
}

func TestCallParentCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	d := Func{CheckType: moderation.CheckFraud, Fn: func(c context.Context, req Request) (RawResult, error) {
		cancel()
		<-c.Done()
		return RawResult{}, c.Err()
	}}

	out := Call(ctx, d, Request{Check: moderation.CheckFraud}, time.Second, fastRetry(3))
	require.NotNil(t, out.Err)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, out.Attempts)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Classify(moderation.CheckBlur, nil))

	de := Classify(moderation.CheckBlur, Permanent(fmt.Errorf("bad input")))
	assert.Equal(t, KindPermanent, de.Kind)
	assert.Equal(t, moderation.CheckBlur, de.Check)

	de = Classify(moderation.CheckBlur, fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, de.Kind)

	de = Classify(moderation.CheckBlur, fmt.Errorf("socket closed"))
	assert.Equal(t, KindTransient, de.Kind)
}
