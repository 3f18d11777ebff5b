package driven

// ConfigStore persists user configuration as key-value pairs.
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	Get(key string) (any, bool)

	// GetString retrieves a string value, or "" if unset.
	GetString(key string) string

	// GetInt retrieves an integer value, or 0 if unset.
	GetInt(key string) int

	// GetFloat retrieves a float value, or 0 if unset.
	GetFloat(key string) float64

	// GetStringSlice retrieves a string list value, or nil if unset.
	GetStringSlice(key string) []string

	// Set stores a configuration value.
	Set(key string, value any) error

	// Delete removes a configuration value.
	Delete(key string) error

	// Save persists the configuration to durable storage.
	Save() error
}
