// config.go: settings for vidguard
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Timeout policies applied when the whole-job timeout elapses
const (
	TimeoutPolicyFail    = "fail"    // job fails with a timeout error
	TimeoutPolicyResolve = "resolve" // pending checks count as timed out and the job is aggregated
)

// Detector modes
const (
	DetectorModeStub   = "stub"
	DetectorModeRemote = "remote"
)

// RetrySettings controls retries of transient detector errors
type RetrySettings struct {
	MaxAttempts  int           // total attempts including the first call
	InitialDelay time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff cap
}

// ModerationSettings contains the job orchestration and policy settings
type ModerationSettings struct {
	MaxConcurrentJobs   int               // jobs analyzed at once; the rest stay queued
	DetectorParallelism int               // detector calls in flight per job, 0 means one per check
	DetectorTimeout     time.Duration     // per detector call
	JobTimeout          time.Duration     // whole job, takes precedence over DetectorTimeout
	TimeoutPolicy       string            // fail or resolve
	MergeEpsilon        float64           // gap in seconds below which trigger spans merge
	PolicyFile          string            // optional policy table, embedded table when empty
	Levels              map[string]string // default sensitivity level per check
	Required            []string          // checks whose failure fails the job
	Retry               RetrySettings
}

// MediaSettings controls how video references are resolved
type MediaSettings struct {
	BaseDir           string   // local videos are resolved relative to this directory
	AllowedExtensions []string // accepted container extensions
	AllowRemote       bool     // accept http(s) and s3 references without probing
	MaxSizeMB         int      // 0 disables the size limit
}

// RemoteDetectorSettings configures HTTP detector endpoints
type RemoteDetectorSettings struct {
	Endpoints  map[string]string // check type to endpoint URL
	APIKey     string            // may reference ${ENV} variables
	APIKeyFile string            // read the API key from this file instead
	Timeout    time.Duration     // HTTP client timeout
}

// DetectorSettings selects the detector implementation
type DetectorSettings struct {
	Mode   string // stub or remote
	Remote RemoteDetectorSettings
}

// SQLiteSettings contains settings for the SQLite result store
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains settings for the MySQL result store
type MySQLSettings struct {
	Enabled      bool
	Username     string
	Password     string
	PasswordFile string
	Host         string
	Port         string
	Database     string
}

// OutputSettings selects the result store. With neither database enabled
// results are kept in memory.
type OutputSettings struct {
	SQLite   SQLiteSettings
	MySQL    MySQLSettings
	CacheTTL time.Duration // terminal job cache, 0 disables
}

// MQTTSettings contains settings for decision publishing
type MQTTSettings struct {
	Enabled      bool
	Broker       string
	Topic        string
	Username     string
	Password     string
	PasswordFile string
	Retain       bool
	QoS          byte
}

// WebServerSettings contains settings for the HTTP API
type WebServerSettings struct {
	Enabled   bool
	Listen    string
	RateLimit float64 // submissions per second per client, 0 disables
	RateBurst int
}

// TelemetrySettings controls the prometheus endpoint
type TelemetrySettings struct {
	Enabled bool
	Listen  string // separate listener; empty serves /metrics on the API server
}

// SentrySettings controls error reporting
type SentrySettings struct {
	Enabled     bool
	DSN         string
	DSNFile     string
	Environment string
	SampleRate  float64
}

// MainSettings contains general settings
type MainSettings struct {
	Name string
}

// Settings contains all configuration options
type Settings struct {
	Debug      bool
	Main       MainSettings
	Logging    logger.LoggingConfig
	WebServer  WebServerSettings
	Moderation ModerationSettings
	Media      MediaSettings
	Detectors  DetectorSettings
	Output     OutputSettings
	MQTT       MQTTSettings
	Telemetry  TelemetrySettings
	Sentry     SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ResolveSecrets(settings); err != nil {
		return nil, err
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, binds the environment and reads the config file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := ConfigSearchPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	viper.SetEnvPrefix("VIDGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// createDefaultConfig writes the embedded config.yaml to dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")
	defaultConfig, err := DefaultConfigYAML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating directories for config file: %w", err)).
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return errors.New(fmt.Errorf("error writing default config file: %w", err)).
			Category(errors.CategoryFileIO).
			Build()
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// DefaultConfigYAML returns the embedded default configuration.
func DefaultConfigYAML() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryFileIO).Build()
	}
	return data, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// RequiredChecks returns the required checks as a set
func (m *ModerationSettings) RequiredChecks() map[string]bool {
	out := make(map[string]bool, len(m.Required))
	for _, c := range m.Required {
		out[strings.ToLower(c)] = true
	}
	return out
}

// StoreType reports which result store the output settings select
func (o *OutputSettings) StoreType() string {
	switch {
	case o.SQLite.Enabled:
		return "sqlite"
	case o.MySQL.Enabled:
		return "mysql"
	default:
		return "memory"
	}
}

// GetLogger returns the configuration module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}
