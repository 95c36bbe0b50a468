package mqtt

import (
	"time"

	"github.com/tphakala/vidguard/internal/moderation"
)

// DecisionMessage is the payload published for every finished analysis.
//
// Field names are part of the MQTT contract consumed by downstream services.
type DecisionMessage struct {
	JobID         string               `json:"jobId"`
	VideoRef      string               `json:"videoRef"`
	State         moderation.JobState  `json:"state"`
	PolicyVersion string               `json:"policyVersion"`
	Verdict       moderation.Verdict   `json:"verdict,omitempty"`
	Confidence    float64              `json:"confidence,omitempty"`
	Reasoning     string               `json:"reasoning,omitempty"`
	Triggers      []TriggerDTO         `json:"triggers,omitempty"`
	ErrorKind     moderation.ErrorKind `json:"errorKind,omitempty"`
	Error         string               `json:"error,omitempty"`
	CompletedAt   string               `json:"completedAt,omitempty"` // RFC3339
	ProcessingMs  int64                `json:"processingMs"`
}

// TriggerDTO summarizes one triggering check.
type TriggerDTO struct {
	Check     moderation.CheckType `json:"check"`
	Level     moderation.Level     `json:"level"`
	Threshold float64              `json:"threshold"`
	MaxScore  float64              `json:"maxScore"`
}

// NewDecisionMessage builds the message for a terminal job.
func NewDecisionMessage(job *moderation.Job) *DecisionMessage {
	msg := &DecisionMessage{
		JobID:         job.ID,
		VideoRef:      job.VideoRef,
		State:         job.State,
		PolicyVersion: job.Config.PolicyVersion,
		ProcessingMs:  job.ProcessingTime().Milliseconds(),
	}
	if job.CompletedAt != nil {
		msg.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	if d := job.Decision; d != nil {
		msg.Verdict = d.Verdict
		msg.Confidence = d.Confidence
		msg.Reasoning = d.Reasoning
		for _, t := range d.Triggers {
			msg.Triggers = append(msg.Triggers, TriggerDTO{
				Check:     t.Check,
				Level:     t.Level,
				Threshold: t.Threshold,
				MaxScore:  t.MaxScore,
			})
		}
	}
	if e := job.Error; e != nil {
		msg.ErrorKind = e.Kind
		msg.Error = e.Message
	}
	return msg
}
