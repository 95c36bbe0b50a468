package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vidguard/internal/errors"
)

func newTestResolver(t *testing.T) *FileResolver {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("not really a video"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.mp4"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.mp4"), 0o700))
	return &FileResolver{
		BaseDir:           dir,
		AllowedExtensions: []string{".mp4", ".mov"},
		AllowRemote:       true,
		MaxSizeBytes:      1024,
	}
}

func TestResolveLocalFile(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	v, err := r.Resolve(context.Background(), "clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, "clip.mp4", v.Name)
	assert.Equal(t, int64(len("not really a video")), v.SizeBytes)
	assert.False(t, v.Remote)
	assert.True(t, filepath.IsAbs(v.Location))
}

func TestResolveRemote(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	v, err := r.Resolve(context.Background(), "https://cdn.example.com/uploads/scam_offer.mp4")
	require.NoError(t, err)
	assert.True(t, v.Remote)
	assert.Equal(t, "scam_offer.mp4", v.Name)

	r.AllowRemote = false
	_, err = r.Resolve(context.Background(), "https://cdn.example.com/uploads/scam_offer.mp4")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestResolveRejectsUnresolvable(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	refs := map[string]string{
		"empty ref":       "  ",
		"missing file":    "missing.mp4",
		"empty file":      "empty.mp4",
		"wrong extension": "notes.txt",
		"directory":       "folder.mp4",
		"path traversal":  "../../etc/passwd.mp4",
		"ftp scheme":      "ftp://example.com/a.mp4",
	}
	for name, ref := range refs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Resolve(context.Background(), ref)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation), "got %v", err)
		})
	}
}

func TestResolveSizeLimit(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	r.MaxSizeBytes = 4
	_, err := r.Resolve(context.Background(), "clip.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestResolveSymlinks(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	outside := filepath.Join(t.TempDir(), "secret.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("outside the media dir"), 0o600))
	if err := os.Symlink(outside, filepath.Join(r.BaseDir, "escape.mp4")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(r.BaseDir, "clip.mp4"), filepath.Join(r.BaseDir, "alias.mp4")))

	_, err := r.Resolve(context.Background(), "escape.mp4")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation), "got %v", err)
	assert.Contains(t, err.Error(), "escapes")

	v, err := r.Resolve(context.Background(), "alias.mp4")
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", v.Name)
}
