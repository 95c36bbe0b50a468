package datastore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/tphakala/vidguard/internal/logger"
)

func TestQueryLoggerLevels(t *testing.T) {
	t.Parallel()

	stmt := func() (string, int64) { return "SELECT * FROM jobs", 3 }
	tests := []struct {
		name    string
		begin   time.Time
		err     error
		want    string
		notWant string
	}{
		{"fast statement", time.Now(), nil, "msg=statement", "WARN"},
		{"missing row", time.Now(), gorm.ErrRecordNotFound, "msg=statement", "WARN"},
		{"failed statement", time.Now(), errors.New("disk I/O error"), "statement failed", ""},
		{"slow statement", time.Now().Add(-time.Second), nil, "slow statement", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			q := &queryLogger{log: logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC), slow: 100 * time.Millisecond}

			q.Trace(context.Background(), tt.begin, stmt, tt.err)

			out := buf.String()
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "rows=3")
			if tt.notWant != "" {
				assert.NotContains(t, out, tt.notWant)
			}
		})
	}
}
