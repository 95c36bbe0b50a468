package datastore

import (
	"context"
	"time"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/observability/metrics"
)

// InstrumentedStore records the outcome and latency of every store operation.
type InstrumentedStore struct {
	Interface
	rec metrics.Recorder
}

// NewInstrumentedStore wraps store. A nil recorder discards measurements.
func NewInstrumentedStore(store Interface, rec metrics.Recorder) *InstrumentedStore {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &InstrumentedStore{Interface: store, rec: rec}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() Interface { return s.Interface }

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.rec.RecordDuration(op, time.Since(start).Seconds())
	if err != nil && !errors.IsNotFound(err) {
		s.rec.RecordOperation(op, metrics.StatusError)
		s.rec.RecordError(op, string(errors.CategoryOf(err)))
		return
	}
	s.rec.RecordOperation(op, metrics.StatusSuccess)
}

func (s *InstrumentedStore) Create(ctx context.Context, job *moderation.Job) (err error) {
	defer func(start time.Time) { s.observe("create", start, err) }(time.Now())
	return s.Interface.Create(ctx, job)
}

func (s *InstrumentedStore) Save(ctx context.Context, job *moderation.Job) (err error) {
	defer func(start time.Time) { s.observe("save", start, err) }(time.Now())
	return s.Interface.Save(ctx, job)
}

func (s *InstrumentedStore) Get(ctx context.Context, id string) (job *moderation.Job, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())
	return s.Interface.Get(ctx, id)
}

func (s *InstrumentedStore) List(ctx context.Context, filter Filter) (jobs []*moderation.Job, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())
	return s.Interface.List(ctx, filter)
}

func (s *InstrumentedStore) Pending(ctx context.Context) (jobs []*moderation.Job, err error) {
	defer func(start time.Time) { s.observe("pending", start, err) }(time.Now())
	return s.Interface.Pending(ctx)
}

func (s *InstrumentedStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())
	return s.Interface.Delete(ctx, id)
}

func (s *InstrumentedStore) Stats(ctx context.Context) (stats Stats, err error) {
	defer func(start time.Time) { s.observe("stats", start, err) }(time.Now())
	return s.Interface.Stats(ctx)
}
