package client

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/moderation"
)

// PollConfig bounds Wait.
type PollConfig struct {
	Interval    time.Duration // fixed delay between status reads
	MaxAttempts int           // status reads before giving up
	// CancelOnGiveUp cancels the job on the server when Wait gives up or
	// its context ends. Without it the job keeps running.
	CancelOnGiveUp bool
	CancelTimeout  time.Duration // bound for the cancel request
}

// DefaultPollConfig polls every two seconds for up to ten minutes.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:      2 * time.Second,
		MaxAttempts:   300,
		CancelTimeout: 10 * time.Second,
	}
}

func (p PollConfig) withDefaults() PollConfig {
	d := DefaultPollConfig()
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.CancelTimeout <= 0 {
		p.CancelTimeout = d.CancelTimeout
	}
	return p
}

// Wait polls the job until it is terminal and returns the final record.
// Unknown ids and rejected requests end the loop at once; unavailable or
// unreachable servers count as a non-terminal read. When every attempt saw a
// non-terminal job Wait returns a timeout error together with the last record.
func (c *Client) Wait(ctx context.Context, id string, cfg PollConfig) (*moderation.Job, error) {
	cfg = cfg.withDefaults()
	log := GetLogger().With(logger.JobID(id))

	backoff := retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), retry.NewConstant(cfg.Interval))

	var (
		last     *moderation.Job
		attempts int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		job, err := c.Status(ctx, id)
		if err != nil {
			if retryableStatusError(err) {
				log.Debug("status read failed, retrying", logger.Int("attempt", attempts), logger.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		last = job
		if job.State.Terminal() {
			return nil
		}
		return retry.RetryableError(errNotTerminal(id, job.State, attempts))
	})
	if err == nil {
		return last, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.New(ctxErr).
			Component("client").
			Category(errors.CategoryCancellation).
			Context("job_id", id).
			Build()
	}
	if cfg.CancelOnGiveUp && !errors.IsNotFound(err) && (last == nil || !last.State.Terminal()) {
		if job, cerr := c.cancelDetached(ctx, id, cfg.CancelTimeout); cerr != nil {
			log.Warn("cancel after giving up failed", logger.Error(cerr))
		} else {
			last = job
			log.Info("job cancelled after giving up", logger.Int("attempts", attempts))
		}
	}
	return last, err
}

// cancelDetached cancels id with a fresh deadline so it still goes out when
// the caller's context has ended.
func (c *Client) cancelDetached(ctx context.Context, id string, timeout time.Duration) (*moderation.Job, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return c.Cancel(cctx, id)
}

func errNotTerminal(id string, state moderation.JobState, attempts int) error {
	return errors.Newf("job %s still %s after %d status reads", id, state, attempts).
		Component("client").
		Category(errors.CategoryTimeout).
		Context("job_id", id).
		Build()
}

func retryableStatusError(err error) bool {
	switch errors.CategoryOf(err) {
	case errors.CategoryNetwork, errors.CategoryLimit, errors.CategoryTimeout:
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}
