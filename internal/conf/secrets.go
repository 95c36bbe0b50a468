package conf

import (
	"github.com/tphakala/vidguard/internal/secrets"
)

// ResolveSecrets replaces credential settings with their resolved values.
// A *File setting takes precedence over the inline value, and inline values
// may reference environment variables as ${VAR}.
func ResolveSecrets(s *Settings) error {
	fields := []struct {
		file  string
		value *string
	}{
		{s.Output.MySQL.PasswordFile, &s.Output.MySQL.Password},
		{s.MQTT.PasswordFile, &s.MQTT.Password},
		{s.Detectors.Remote.APIKeyFile, &s.Detectors.Remote.APIKey},
		{s.Sentry.DSNFile, &s.Sentry.DSN},
	}
	for _, f := range fields {
		v, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return err
		}
		*f.value = v
	}
	return nil
}
