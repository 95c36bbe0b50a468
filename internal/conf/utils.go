package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/vidguard/internal/errors"
)

// ConfigDirEnv names a directory that replaces the config search path.
const ConfigDirEnv = "VIDGUARD_CONFIG_DIR"

// ConfigSearchPaths lists the directories searched for config.yaml, the
// working directory first. If one of them already holds a config.yaml only
// that directory is returned; otherwise a default file is created in the
// first entry.
func ConfigSearchPaths() ([]string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return []string{dir}, nil
	}

	userDir, err := os.UserConfigDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "locate-user-config-dir").
			Build()
	}

	paths := []string{".", filepath.Join(userDir, "vidguard")}
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/vidguard")
	}
	for _, dir := range paths {
		if info, err := os.Stat(filepath.Join(dir, "config.yaml")); err == nil && info.Mode().IsRegular() {
			return []string{dir}, nil
		}
	}
	return paths, nil
}
