package datastore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/vidguard/internal/moderation"
)

// JobRecord is the database row of one analysis job. The job itself is kept
// as JSON in Payload; the other columns exist for filtering and statistics.
type JobRecord struct {
	ID            string    `gorm:"primaryKey;size:36"`
	VideoRef      string    `gorm:"size:1024"`
	State         string    `gorm:"size:16;index"`
	Verdict       string    `gorm:"size:16;index"`
	PolicyVersion string    `gorm:"size:64"`
	Triggered     string    `gorm:"size:128"` // comma separated check types
	ProcessingMs  int64     `gorm:"default:0"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time
	Payload       string `gorm:"type:text"`
}

// TableName sets the table name.
func (JobRecord) TableName() string {
	return "analysis_jobs"
}

func toRecord(job *moderation.Job) (*JobRecord, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	triggered := triggeredChecks(job)
	names := make([]string, len(triggered))
	for i, c := range triggered {
		names[i] = string(c)
	}
	return &JobRecord{
		ID:            job.ID,
		VideoRef:      job.VideoRef,
		State:         string(job.State),
		Verdict:       string(verdictOf(job)),
		PolicyVersion: job.Config.PolicyVersion,
		Triggered:     strings.Join(names, ","),
		ProcessingMs:  job.ProcessingTime().Milliseconds(),
		CreatedAt:     job.CreatedAt,
		Payload:       string(payload),
	}, nil
}

func fromRecord(rec *JobRecord) (*moderation.Job, error) {
	var job moderation.Job
	if err := json.Unmarshal([]byte(rec.Payload), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func splitTriggered(s string) []moderation.CheckType {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]moderation.CheckType, len(parts))
	for i, p := range parts {
		out[i] = moderation.CheckType(p)
	}
	return out
}
