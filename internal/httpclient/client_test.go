package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.Equal(t, defaultUserAgent, c.userAgent)

	c = New(Config{Timeout: time.Second, UserAgent: "vidguard-test/1.0"})
	assert.Equal(t, time.Second, c.timeout)
	assert.Equal(t, "vidguard-test/1.0", c.userAgent)
}

func TestPostJSON(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, "http://detector.test/detect", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", req.Header.Get("Authorization"))
		assert.Equal(t, defaultUserAgent, req.Header.Get("User-Agent"))
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"check":"blur"}`, string(body))
		return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
	})

	c := New(Config{Transport: mt})
	resp, err := c.PostJSON(context.Background(), "http://detector.test/detect",
		map[string]string{"check": "blur"}, http.Header{"Authorization": {"Bearer k"}})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	// the default deadline must not cut off reading the body
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestDoAppliesDefaultTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	c := New(Config{Timeout: 50 * time.Millisecond})
	t.Cleanup(c.Close)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Do(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoKeepsCallerDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	c := New(Config{Timeout: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := c.Do(ctx, req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
