package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vidguard/internal/errors"
)

func TestExpand(t *testing.T) {
	t.Setenv("VG_TOKEN", "abc123")
	t.Setenv("VG_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{"literal", "plain-value", "plain-value", ""},
		{"empty", "", "", ""},
		{"variable", "${VG_TOKEN}", "abc123", ""},
		{"embedded", "Bearer ${VG_TOKEN}", "Bearer abc123", ""},
		{"fallback used", "${VG_UNSET:-fallback}", "fallback", ""},
		{"empty fallback", "${VG_EMPTY:-}", "", ""},
		{"missing", "${VG_UNSET}:${VG_OTHER}:${VG_UNSET}", "", "VG_UNSET, VG_OTHER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	got, err := ReadFile(write("token", "s3cret\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	got, err = ReadFile(write("spaces", "  padded  \r\n"))
	require.NoError(t, err)
	assert.Equal(t, "  padded  ", got)

	_, err = ReadFile(write("empty", "\n"))
	assert.ErrorContains(t, err, "empty")

	_, err = ReadFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = ReadFile(dir)
	assert.ErrorContains(t, err, "not a regular file")
}

func TestResolvePrefersFile(t *testing.T) {
	t.Setenv("VG_PASSWORD", "from-env")
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o400))

	got, err := Resolve(path, "${VG_PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${VG_PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}
