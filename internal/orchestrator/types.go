// Package orchestrator runs analysis jobs: it admits them under a concurrency
// limit, dispatches detectors in parallel, records their results as the single
// writer of each job and resolves the job once every check has reported.
package orchestrator

import (
	"time"

	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/detector"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
)

func errStopped() error {
	return errors.Newf("orchestrator is not running").
		Component("orchestrator").
		Category(errors.CategoryLimit).
		Build()
}

// Timeout policies.
const (
	TimeoutPolicyFail    = conf.TimeoutPolicyFail
	TimeoutPolicyResolve = conf.TimeoutPolicyResolve
)

// Config holds the orchestration settings.
type Config struct {
	MaxConcurrentJobs   int           // jobs analyzed at once, the rest stay queued
	DetectorParallelism int           // detector calls in flight per job, 0 means one per check
	DetectorTimeout     time.Duration // per detector attempt
	JobTimeout          time.Duration // whole job, measured from the start of analysis
	TimeoutPolicy       string        // fail or resolve
	Retry               detector.RetryConfig
	StopTimeout         time.Duration // how long Stop waits for running jobs
	EventBuffer         int           // pending notifications before new ones are dropped
}

// DefaultConfig returns the orchestration defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 4,
		DetectorTimeout:   2 * time.Minute,
		JobTimeout:        10 * time.Minute,
		TimeoutPolicy:     TimeoutPolicyFail,
		Retry:             detector.DefaultRetryConfig(),
		StopTimeout:       30 * time.Second,
		EventBuffer:       256,
	}
}

// ConfigFromSettings maps the moderation settings onto Config.
func ConfigFromSettings(s *conf.Settings) Config {
	cfg := DefaultConfig()
	m := s.Moderation
	cfg.MaxConcurrentJobs = m.MaxConcurrentJobs
	cfg.DetectorParallelism = m.DetectorParallelism
	cfg.DetectorTimeout = m.DetectorTimeout
	cfg.JobTimeout = m.JobTimeout
	cfg.TimeoutPolicy = m.TimeoutPolicy
	cfg.Retry = detector.RetryConfig{
		MaxAttempts:  m.Retry.MaxAttempts,
		InitialDelay: m.Retry.InitialDelay,
		MaxDelay:     m.Retry.MaxDelay,
	}
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = d.MaxConcurrentJobs
	}
	if c.TimeoutPolicy == "" {
		c.TimeoutPolicy = d.TimeoutPolicy
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// GetLogger returns the orchestrator module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("orchestrator")
}
