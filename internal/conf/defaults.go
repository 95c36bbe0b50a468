// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "vidguard")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/vidguard.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", "0.0.0.0:8080")
	viper.SetDefault("webserver.ratelimit", 5.0)
	viper.SetDefault("webserver.rateburst", 20)

	viper.SetDefault("moderation.maxconcurrentjobs", 4)
	viper.SetDefault("moderation.detectorparallelism", 0)
	viper.SetDefault("moderation.detectortimeout", 2*time.Minute)
	viper.SetDefault("moderation.jobtimeout", 10*time.Minute)
	viper.SetDefault("moderation.timeoutpolicy", TimeoutPolicyFail)
	viper.SetDefault("moderation.mergeepsilon", 0.5)
	viper.SetDefault("moderation.policyfile", "")
	viper.SetDefault("moderation.levels", map[string]string{
		"nudity":    "moderate",
		"copyright": "moderate",
		"fraud":     "strict",
		"blur":      "moderate",
	})
	viper.SetDefault("moderation.required", []string{})
	viper.SetDefault("moderation.retry.maxattempts", 3)
	viper.SetDefault("moderation.retry.initialdelay", 500*time.Millisecond)
	viper.SetDefault("moderation.retry.maxdelay", 10*time.Second)

	viper.SetDefault("media.basedir", "uploads")
	viper.SetDefault("media.allowedextensions", []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".m4v"})
	viper.SetDefault("media.allowremote", true)
	viper.SetDefault("media.maxsizemb", 2048)

	viper.SetDefault("detectors.mode", DetectorModeStub)
	viper.SetDefault("detectors.remote.endpoints", map[string]string{})
	viper.SetDefault("detectors.remote.apikey", "")
	viper.SetDefault("detectors.remote.apikeyfile", "")
	viper.SetDefault("detectors.remote.timeout", time.Minute)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "vidguard.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "vidguard")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.passwordfile", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "vidguard")
	viper.SetDefault("output.cachettl", 10*time.Minute)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "vidguard")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.passwordfile", "")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.qos", 1)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.listen", "")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.dsnfile", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)
}
