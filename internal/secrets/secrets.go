// Package secrets resolves credentials referenced from the configuration:
// ${VAR} expansion from the environment and secret files as mounted by
// Docker or Kubernetes. Secret values are never logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
)

const maxSecretFileSize = 64 << 10

// GetLogger returns the secrets module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}

// Expand replaces ${VAR} and ${VAR:-fallback} references in s with values
// from the environment. Unset variables without a fallback are an error.
func Expand(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	var missing []string
	out := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		if !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return ""
	})
	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return out, nil
}

// ReadFile reads a secret file. Trailing newlines are trimmed and empty
// files are rejected. Files readable by group or others are accepted with a
// warning.
func ReadFile(path string) (string, error) {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return "", fileError(path, fmt.Errorf("stat secret file: %w", err))
	case !info.Mode().IsRegular():
		return "", fileError(path, fmt.Errorf("secret path is not a regular file"))
	case info.Size() > maxSecretFileSize:
		return "", fileError(path, fmt.Errorf("secret file exceeds %d bytes", maxSecretFileSize))
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", path),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fileError(path, fmt.Errorf("read secret file: %w", err))
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError(path, fmt.Errorf("secret file is empty"))
	}
	return secret, nil
}

// Resolve returns the secret from file when set, otherwise value with
// environment references expanded.
func Resolve(file, value string) (string, error) {
	if file != "" {
		return ReadFile(file)
	}
	return Expand(value)
}

func fileError(path string, err error) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}
