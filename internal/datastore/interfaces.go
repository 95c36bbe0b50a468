// Package datastore persists analysis jobs. The orchestrator is the only
// writer; readers get deep copies, so a returned job never changes under them.
package datastore

import (
	"context"
	"time"

	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/moderation"
)

const (
	// DefaultListLimit applies when Filter.Limit is zero.
	DefaultListLimit = 100
	// MaxListLimit caps Filter.Limit.
	MaxListLimit = 1000
)

// Interface abstracts the storage backend of analysis jobs.
type Interface interface {
	// Create inserts a new job. It fails with a conflict if the id exists.
	Create(ctx context.Context, job *moderation.Job) error
	// Save replaces a stored job. It fails with not found if the id is unknown.
	Save(ctx context.Context, job *moderation.Job) error
	// Get returns a copy of the job with id.
	Get(ctx context.Context, id string) (*moderation.Job, error)
	// List returns jobs newest first.
	List(ctx context.Context, filter Filter) ([]*moderation.Job, error)
	// Pending returns every non-terminal job, oldest first.
	Pending(ctx context.Context) ([]*moderation.Job, error)
	// Delete removes the job with id.
	Delete(ctx context.Context, id string) error
	// Stats summarizes all stored jobs.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Filter selects jobs for List. Zero values match everything.
type Filter struct {
	State   moderation.JobState
	Verdict moderation.Verdict
	Limit   int
	Offset  int
}

// Normalize applies the default and maximum limit.
func (f Filter) Normalize() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether job passes the filter's state and verdict.
func (f Filter) Matches(job *moderation.Job) bool {
	if f.State != "" && job.State != f.State {
		return false
	}
	if f.Verdict != "" && (job.Decision == nil || job.Decision.Verdict != f.Verdict) {
		return false
	}
	return true
}

// Stats is the summary returned by Interface.Stats.
type Stats struct {
	Total              int                          `json:"total"`
	ByState            map[moderation.JobState]int  `json:"by_state"`
	Approved           int                          `json:"approved"`
	Rejected           int                          `json:"rejected"`
	ApprovalRate       float64                      `json:"approval_rate"`
	RejectionRate      float64                      `json:"rejection_rate"`
	ViolationBreakdown map[moderation.CheckType]int `json:"violation_breakdown"`
	AvgProcessingSecs  float64                      `json:"average_processing_seconds"`
}

// New creates the store selected by settings: SQLite, MySQL or, when neither
// is enabled, an in-memory store. Terminal jobs are served from a read cache
// when a cache TTL is configured.
func New(settings *conf.Settings) (Interface, error) {
	var (
		store Interface
		err   error
	)
	switch settings.Output.StoreType() {
	case "sqlite":
		store, err = NewSQLiteStore(settings.Output.SQLite.Path, settings.Debug)
	case "mysql":
		store, err = NewMySQLStore(MySQLConfig{
			Host:     settings.Output.MySQL.Host,
			Port:     settings.Output.MySQL.Port,
			Username: settings.Output.MySQL.Username,
			Password: settings.Output.MySQL.Password,
			Database: settings.Output.MySQL.Database,
			Debug:    settings.Debug,
		})
	default:
		GetLogger().Warn("no database enabled, analysis results will not survive a restart")
		store = NewMemoryStore()
	}
	if err != nil {
		return nil, err
	}
	if settings.Output.CacheTTL > 0 {
		store = NewCachedStore(store, settings.Output.CacheTTL)
	}
	return store, nil
}

// summary accumulates Stats from individual jobs.
type summary struct {
	stats          Stats
	processingSum  time.Duration
	processingJobs int
}

func newSummary() *summary {
	return &summary{stats: Stats{
		ByState:            make(map[moderation.JobState]int),
		ViolationBreakdown: make(map[moderation.CheckType]int),
	}}
}

func (s *summary) add(state moderation.JobState, verdict moderation.Verdict, triggered []moderation.CheckType, processing time.Duration) {
	s.stats.Total++
	s.stats.ByState[state]++
	switch verdict {
	case moderation.VerdictApproved:
		s.stats.Approved++
	case moderation.VerdictRejected:
		s.stats.Rejected++
	}
	for _, c := range triggered {
		s.stats.ViolationBreakdown[c]++
	}
	if state.Terminal() && processing > 0 {
		s.processingSum += processing
		s.processingJobs++
	}
}

func (s *summary) result() Stats {
	st := s.stats
	if decided := st.Approved + st.Rejected; decided > 0 {
		st.ApprovalRate = float64(st.Approved) / float64(decided)
		st.RejectionRate = float64(st.Rejected) / float64(decided)
	}
	if s.processingJobs > 0 {
		st.AvgProcessingSecs = s.processingSum.Seconds() / float64(s.processingJobs)
	}
	return st
}

// triggeredChecks lists the checks that triggered in job's decision.
func triggeredChecks(job *moderation.Job) []moderation.CheckType {
	if job.Decision == nil {
		return nil
	}
	out := make([]moderation.CheckType, 0, len(job.Decision.Triggers))
	for _, t := range job.Decision.Triggers {
		out = append(out, t.Check)
	}
	return out
}

func verdictOf(job *moderation.Job) moderation.Verdict {
	if job.Decision == nil {
		return ""
	}
	return job.Decision.Verdict
}
