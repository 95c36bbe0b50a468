// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/tphakala/vidguard/internal/errors"
)

// Names accepted in moderation.levels and moderation.required. These mirror
// moderation.AllChecks and moderation.Levels; conf sits below that package.
var (
	knownChecks = []string{"nudity", "copyright", "fraud", "blur"}
	knownLevels = []string{"strict", "moderate", "lenient"}
)

// ValidateSettings validates the entire Settings struct and reports every problem at once.
func ValidateSettings(settings *Settings) error {
	var result *multierror.Error

	result = multierror.Append(result, validateModerationSettings(&settings.Moderation)...)
	result = multierror.Append(result, validateMediaSettings(&settings.Media)...)
	result = multierror.Append(result, validateDetectorSettings(&settings.Detectors, &settings.Moderation)...)
	result = multierror.Append(result, validateOutputSettings(&settings.Output)...)
	result = multierror.Append(result, validateMQTTSettings(&settings.MQTT)...)
	result = multierror.Append(result, validateWebServerSettings(&settings.WebServer)...)
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		result = multierror.Append(result, fmt.Errorf("sentry.dsn is required when sentry is enabled"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("problems", len(result.Errors)).
			Build()
	}
	return nil
}

func validateModerationSettings(m *ModerationSettings) []error {
	var errs []error

	if m.MaxConcurrentJobs < 1 {
		errs = append(errs, fmt.Errorf("moderation.maxconcurrentjobs must be at least 1, got %d", m.MaxConcurrentJobs))
	}
	if m.DetectorParallelism < 0 {
		errs = append(errs, fmt.Errorf("moderation.detectorparallelism must not be negative"))
	}
	if m.DetectorTimeout <= 0 {
		errs = append(errs, fmt.Errorf("moderation.detectortimeout must be positive"))
	}
	if m.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("moderation.jobtimeout must be positive"))
	}
	if m.TimeoutPolicy != TimeoutPolicyFail && m.TimeoutPolicy != TimeoutPolicyResolve {
		errs = append(errs, fmt.Errorf("moderation.timeoutpolicy must be %q or %q, got %q",
			TimeoutPolicyFail, TimeoutPolicyResolve, m.TimeoutPolicy))
	}
	if m.MergeEpsilon < 0 {
		errs = append(errs, fmt.Errorf("moderation.mergeepsilon must not be negative"))
	}
	if len(m.Levels) == 0 {
		errs = append(errs, fmt.Errorf("moderation.levels must configure at least one check"))
	}
	for check, level := range m.Levels {
		if !slices.Contains(knownChecks, check) {
			errs = append(errs, fmt.Errorf("moderation.levels: unknown check %q", check))
		}
		if !slices.Contains(knownLevels, strings.ToLower(level)) {
			errs = append(errs, fmt.Errorf("moderation.levels.%s: unknown sensitivity level %q", check, level))
		}
	}
	for _, check := range m.Required {
		if _, ok := m.Levels[strings.ToLower(check)]; !ok {
			errs = append(errs, fmt.Errorf("moderation.required: check %q is not configured in moderation.levels", check))
		}
	}
	if m.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("moderation.retry.maxattempts must be at least 1"))
	}
	if m.Retry.InitialDelay <= 0 || m.Retry.MaxDelay < m.Retry.InitialDelay {
		errs = append(errs, fmt.Errorf("moderation.retry delays must satisfy 0 < initialdelay <= maxdelay"))
	}
	return errs
}

func validateMediaSettings(m *MediaSettings) []error {
	var errs []error
	if m.BaseDir == "" && !m.AllowRemote {
		errs = append(errs, fmt.Errorf("media.basedir is required when remote references are not allowed"))
	}
	for _, ext := range m.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("media.allowedextensions: %q must start with a dot", ext))
		}
	}
	if m.MaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("media.maxsizemb must not be negative"))
	}
	return errs
}

func validateDetectorSettings(d *DetectorSettings, m *ModerationSettings) []error {
	var errs []error
	switch d.Mode {
	case DetectorModeStub:
	case DetectorModeRemote:
		for check := range m.Levels {
			endpoint, ok := d.Remote.Endpoints[check]
			if !ok {
				errs = append(errs, fmt.Errorf("detectors.remote.endpoints: no endpoint for check %q", check))
				continue
			}
			if u, err := url.Parse(endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, fmt.Errorf("detectors.remote.endpoints.%s: invalid URL %q", check, endpoint))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("detectors.mode must be %q or %q, got %q", DetectorModeStub, DetectorModeRemote, d.Mode))
	}
	return errs
}

func validateOutputSettings(o *OutputSettings) []error {
	var errs []error
	if o.SQLite.Enabled && o.MySQL.Enabled {
		errs = append(errs, fmt.Errorf("output: only one of sqlite and mysql can be enabled"))
	}
	if o.SQLite.Enabled && o.SQLite.Path == "" {
		errs = append(errs, fmt.Errorf("output.sqlite.path is required"))
	}
	if o.MySQL.Enabled && (o.MySQL.Host == "" || o.MySQL.Database == "") {
		errs = append(errs, fmt.Errorf("output.mysql.host and output.mysql.database are required"))
	}
	if o.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("output.cachettl must not be negative"))
	}
	return errs
}

func validateMQTTSettings(m *MQTTSettings) []error {
	if !m.Enabled {
		return nil
	}
	var errs []error
	if m.Broker == "" {
		errs = append(errs, fmt.Errorf("mqtt.broker is required when mqtt is enabled"))
	}
	if m.Topic == "" {
		errs = append(errs, fmt.Errorf("mqtt.topic is required when mqtt is enabled"))
	}
	if m.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2"))
	}
	return errs
}

func validateWebServerSettings(w *WebServerSettings) []error {
	var errs []error
	if w.Enabled && w.Listen == "" {
		errs = append(errs, fmt.Errorf("webserver.listen is required when the webserver is enabled"))
	}
	if w.RateLimit < 0 || (w.RateLimit > 0 && w.RateBurst < 1) {
		errs = append(errs, fmt.Errorf("webserver.ratelimit must be >= 0 and webserver.rateburst >= 1 when limiting"))
	}
	return errs
}
