// Package media resolves video references submitted for analysis. Decoding
// is left to the detectors; this package only confirms a reference points at
// something analyzable.
package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tphakala/vidguard/internal/errors"
)

// Video is a resolved video reference.
type Video struct {
	Ref       string `json:"ref"`
	Location  string `json:"location"` // absolute path or URL
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Remote    bool   `json:"remote"`
}

// Resolver validates a video reference and returns its location.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (Video, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref string) (Video, error)

func (f ResolverFunc) Resolve(ctx context.Context, ref string) (Video, error) { return f(ctx, ref) }

// FileResolver resolves local files under a base directory and, optionally,
// remote http(s) and s3 references.
type FileResolver struct {
	BaseDir           string
	AllowedExtensions []string
	AllowRemote       bool
	MaxSizeBytes      int64
}

var remoteSchemes = []string{"http", "https", "s3"}

// Resolve implements Resolver. All failures are validation errors.
func (r *FileResolver) Resolve(ctx context.Context, ref string) (Video, error) {
	if err := ctx.Err(); err != nil {
		return Video{}, err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Video{}, invalidRef(ref, "video reference is empty")
	}

	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		if !r.AllowRemote || !slices.Contains(remoteSchemes, strings.ToLower(u.Scheme)) {
			return Video{}, invalidRef(ref, fmt.Sprintf("unsupported video reference scheme %q", u.Scheme))
		}
		name := filepath.Base(u.Path)
		if err := r.checkExtension(ref, name); err != nil {
			return Video{}, err
		}
		return Video{Ref: ref, Location: u.String(), Name: name, Remote: true}, nil
	}

	path, err := r.localPath(ref)
	if err != nil {
		return Video{}, err
	}
	if err := r.checkExtension(ref, path); err != nil {
		return Video{}, err
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return Video{}, invalidRef(ref, "video file does not exist")
	case err != nil:
		return Video{}, errors.New(fmt.Errorf("stat video: %w", err)).
			Category(errors.CategoryFileIO).
			Context("ref", ref).
			Build()
	case info.IsDir():
		return Video{}, invalidRef(ref, "video reference is a directory")
	case info.Size() == 0:
		return Video{}, invalidRef(ref, "video file is empty")
	case r.MaxSizeBytes > 0 && info.Size() > r.MaxSizeBytes:
		return Video{}, invalidRef(ref, fmt.Sprintf("video file exceeds %d bytes", r.MaxSizeBytes))
	}

	return Video{Ref: ref, Location: path, Name: filepath.Base(path), SizeBytes: info.Size()}, nil
}

// localPath confines ref to BaseDir. Symlinks are resolved before the
// containment check so a link inside BaseDir cannot point outside it.
func (r *FileResolver) localPath(ref string) (string, error) {
	if r.BaseDir == "" {
		return "", invalidRef(ref, "local video references are disabled")
	}
	base, err := filepath.Abs(r.BaseDir)
	if err != nil {
		return "", errors.New(err).Category(errors.CategoryFileIO).Build()
	}
	candidate := ref
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(base, candidate)
	}
	candidate = filepath.Clean(candidate)
	if !within(base, candidate) {
		return "", invalidRef(ref, "video reference escapes the media directory")
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	switch {
	case os.IsNotExist(err):
		return candidate, nil
	case err != nil:
		return "", errors.New(fmt.Errorf("resolve video path: %w", err)).
			Category(errors.CategoryFileIO).
			Context("ref", ref).
			Build()
	}
	if realBase, err := filepath.EvalSymlinks(base); err == nil {
		base = realBase
	}
	if !within(base, resolved) {
		return "", invalidRef(ref, "video reference escapes the media directory")
	}
	return resolved, nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (r *FileResolver) checkExtension(ref, name string) error {
	if len(r.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range r.AllowedExtensions {
		if strings.EqualFold(ext, allowed) {
			return nil
		}
	}
	return invalidRef(ref, fmt.Sprintf("unsupported video format %q", ext))
}

func invalidRef(ref, reason string) error {
	return errors.New(errors.NewStd(reason)).
		Category(errors.CategoryValidation).
		Component("media").
		Context("ref", ref).
		Build()
}
