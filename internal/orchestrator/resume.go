package orchestrator

import (
	"context"
	"fmt"

	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/moderation"
)

// resume re-admits jobs left queued or analyzing by a previous run. Detectors
// are idempotent, so an interrupted job restarts from a clean queued state.
func (o *Orchestrator) resume(ctx context.Context) error {
	pending, err := o.store.Pending(ctx)
	if err != nil {
		return err
	}
	for _, stored := range pending {
		if o.runner(stored.ID) != nil {
			continue
		}
		job := moderation.NewJob(stored.ID, stored.VideoRef, stored.Config, stored.CreatedAt)

		video, err := o.media.Resolve(ctx, job.VideoRef)
		if err != nil {
			GetLogger().Warn("cannot resume job, video is no longer resolvable",
				logger.JobID(job.ID), logger.Error(err))
			if ferr := job.Fail(moderation.JobError{
				Kind:    moderation.ErrorKindInternal,
				Message: fmt.Sprintf("video could not be resolved on resume: %v", err),
			}, moderation.CheckFailed, o.clock()); ferr != nil {
				return ferr
			}
			if err := o.store.Save(ctx, job); err != nil {
				return err
			}
			continue
		}

		if stored.State != moderation.JobQueued {
			if err := o.store.Save(ctx, job); err != nil {
				return err
			}
		}
		if err := o.schedule(job, video); err != nil {
			return err
		}
		GetLogger().Info("resumed analysis",
			logger.JobID(job.ID),
			logger.String("previous_state", string(stored.State)))
	}
	return nil
}
