package provider

import "fmt"

// ConfigurationError reports a missing or malformed provider setting. It is
// fatal to starting a login and is returned before any network I/O.
type ConfigurationError struct {
	Provider Name
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s configuration: %s %s", e.Provider, e.Field, e.Reason)
}
