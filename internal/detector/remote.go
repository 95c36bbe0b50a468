package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/httpclient"
	"github.com/tphakala/vidguard/internal/moderation"
)

const maxRemoteResponseBytes = 8 << 20

// remoteRequest is the JSON body posted to a remote detector.
type remoteRequest struct {
	JobID     string               `json:"job_id"`
	Check     moderation.CheckType `json:"check"`
	VideoRef  string               `json:"video_ref"`
	Location  string               `json:"location"`
	Level     moderation.Level     `json:"level"`
	Threshold float64              `json:"threshold"`
}

// RemoteDetector calls a detector service over HTTP. The service answers
// with a RawResult encoded as JSON.
type RemoteDetector struct {
	CheckType moderation.CheckType
	Endpoint  string
	APIKey    string
	Client    *httpclient.Client
}

// NewRemoteDetector creates a remote detector. timeout bounds the HTTP client
// independently of the per-call context deadline.
func NewRemoteDetector(check moderation.CheckType, endpoint, apiKey string, timeout time.Duration) *RemoteDetector {
	return &RemoteDetector{
		CheckType: check,
		Endpoint:  endpoint,
		APIKey:    apiKey,
		Client:    httpclient.New(httpclient.Config{Timeout: timeout, UserAgent: "vidguard-detector"}),
	}
}

func (r *RemoteDetector) Name() string                { return "remote-" + string(r.CheckType) }
func (r *RemoteDetector) Check() moderation.CheckType { return r.CheckType }

// Detect implements Detector. 5xx and 429 responses are transient, other
// non-2xx responses and undecodable bodies are permanent.
func (r *RemoteDetector) Detect(ctx context.Context, req Request) (RawResult, error) {
	header := http.Header{"Accept": {"application/json"}}
	if r.APIKey != "" {
		header.Set("Authorization", "Bearer "+r.APIKey)
	}

	client := r.Client
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	resp, err := client.PostJSON(ctx, r.Endpoint, remoteRequest{
		JobID:     req.JobID,
		Check:     r.CheckType,
		VideoRef:  req.Video.Ref,
		Location:  req.Video.Location,
		Level:     req.Config.Level,
		Threshold: req.Config.Policy.Threshold,
	}, header)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return RawResult{}, Timeout(err)
		}
		return RawResult{}, Transient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponseBytes))
	if err != nil {
		return RawResult{}, Transient(fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return RawResult{}, Transient(fmt.Errorf("%s returned %s", r.Endpoint, resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return RawResult{}, Permanent(fmt.Errorf("%s returned %s: %s", r.Endpoint, resp.Status, truncate(payload, 200)))
	}

	var res RawResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return RawResult{}, Permanent(fmt.Errorf("decoding %s response: %w", r.CheckType, err))
	}
	if res.Scale == "" {
		res.Scale = ScaleUnit
	}
	if res.TimeUnit == "" {
		res.TimeUnit = UnitSeconds
	}
	return res, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
