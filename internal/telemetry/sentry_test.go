package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vidguard/internal/buildinfo"
	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/errors"
)

func TestApplyPrivacyFilters(t *testing.T) {
	event := &sentry.Event{
		ServerName: "worker-17.internal",
		User:       sentry.User{ID: "42", IPAddress: "10.0.0.9"},
		Contexts: map[string]sentry.Context{
			"os":      {"name": "linux"},
			"runtime": {"name": "go"},
			"job":     {"value": "job-1"},
		},
		Extra:   map[string]any{"component": "orchestrator", "video_ref": "s3://bucket/private.mp4"},
		Tags:    map[string]string{"hostname": "worker-17", "category": "internal"},
		Request: &sentry.Request{URL: "http://localhost/api/v2/analyses"},
		Message: "resolve https://cdn.example.com/private.mp4?sig=abc failed",
		Exception: []sentry.Exception{
			{Type: "EnhancedError", Value: "GET s3://bucket/clip.mp4: access denied"},
		},
	}

	out := applyPrivacyFilters(event)

	require.NotNil(t, out)
	assert.Empty(t, out.ServerName)
	assert.True(t, out.User.IsEmpty())
	assert.NotContains(t, out.Contexts, "os")
	assert.NotContains(t, out.Contexts, "runtime")
	assert.Contains(t, out.Contexts, "job")
	assert.Equal(t, map[string]any{"component": "orchestrator"}, out.Extra)
	assert.Equal(t, map[string]string{"category": "internal"}, out.Tags)
	assert.Nil(t, out.Request)
	assert.NotContains(t, out.Message, "private.mp4")
	assert.Contains(t, out.Message, "https://domain-com/url-")
	assert.NotContains(t, out.Exception[0].Value, "clip.mp4")
	assert.Contains(t, out.Exception[0].Value, "access denied")

	assert.Nil(t, applyPrivacyFilters(nil))
}

func TestInitSentryDisabledIsNoop(t *testing.T) {
	settings := &conf.Settings{}
	require.NoError(t, InitSentry(settings, &buildinfo.Context{}))
	assert.False(t, initialized.Load())
	Flush()
}

func TestInitSentryRequiresDSN(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = true

	err := InitSentry(settings, &buildinfo.Context{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
