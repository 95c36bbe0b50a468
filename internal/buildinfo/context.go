// Package buildinfo carries build-time metadata that is injected at startup
// and kept out of the user configuration.
package buildinfo

import "runtime"

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetSystemID() string
}

// Context is the BuildInfo populated from linker flags in main.
type Context struct {
	Version   string // git version tag
	BuildDate string
	SystemID  string // identifies this instance in error reports
}

// NewContext creates a build context.
func NewContext(version, buildDate, systemID string) *Context {
	return &Context{Version: version, BuildDate: buildDate, SystemID: systemID}
}

// GetVersion implements BuildInfo. It is safe on a nil receiver.
func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Version)
}

// GetBuildDate implements BuildInfo.
func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.BuildDate)
}

// GetSystemID implements BuildInfo.
func (c *Context) GetSystemID() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.SystemID)
}

// Summary returns the fields printed by the version command.
func Summary(info BuildInfo) map[string]string {
	return map[string]string{
		"version":    info.GetVersion(),
		"build_date": info.GetBuildDate(),
		"go_version": runtime.Version(),
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}
