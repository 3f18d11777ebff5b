package file

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// Well-known configuration keys.
const (
	// KeyDeviceID identifies this installation. Generated on first run.
	KeyDeviceID = "device.id"

	// KeyWorkspaceID is the default workspace for search and sync.
	KeyWorkspaceID = "workspace.id"

	// KeyOpenAIKey holds the embedding API key.
	KeyOpenAIKey = "openai.api_key"

	// KeyEmbeddingProvider selects the embedding backend:
	// "openai" (default) or "ollama".
	KeyEmbeddingProvider = "embedding.provider"

	// KeyOllamaURL overrides the local Ollama endpoint.
	KeyOllamaURL = "ollama.url"

	// KeyRerankURL points at the rerank proxy.
	KeyRerankURL = "rerank.url"

	// KeyRerankAPIKey authenticates against the rerank proxy.
	KeyRerankAPIKey = "rerank.api_key"

	// KeyRemoteDSN is the optional remote search database DSN.
	KeyRemoteDSN = "remote.dsn"

	// KeySearchLimit overrides the default result count.
	KeySearchLimit = "search.limit"

	// KeySlackToken is the Slack bot or user token.
	KeySlackToken = "slack.token"

	// KeyNotionToken is the Notion integration token.
	KeyNotionToken = "notion.token"

	// KeyLinearAPIKey is the Linear personal API key.
	KeyLinearAPIKey = "linear.api_key"

	// KeyGmailAccessToken is an OAuth2 access token with read scope.
	KeyGmailAccessToken = "gmail.access_token"
)

// ChannelsKey returns the per-source channel allow-list key,
// e.g. "channels.slack".
func ChannelsKey(source string) string {
	return "channels." + source
}

// RecencyHalfLifeKey returns the per-source half-life override key.
func RecencyHalfLifeKey(source string) string {
	return "recency." + source + ".half_life_days"
}

// RecencyWeightKey returns the per-source recency weight override key.
func RecencyWeightKey(source string) string {
	return "recency." + source + ".weight"
}

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
// Configuration is stored in a TOML file within the recall config directory.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.recall/config.toml.
// A device id is generated and persisted on first run.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".recall")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
		data:     make(map[string]any),
	}

	// Load existing data if file exists
	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if s.GetString(KeyDeviceID) == "" {
		if err := s.Set(KeyDeviceID, uuid.NewString()); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Get retrieves a configuration value by key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// GetString retrieves a string configuration value.
func (s *ConfigStore) GetString(key string) string {
	val, ok := s.Get(key)
	if !ok {
		return ""
	}

	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// GetInt retrieves an integer configuration value.
func (s *ConfigStore) GetInt(key string) int {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	// TOML integers are parsed as int64
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// GetFloat retrieves a float configuration value. TOML integers are
// widened rather than rejected.
func (s *ConfigStore) GetFloat(key string) float64 {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// GetBool retrieves a boolean configuration value.
func (s *ConfigStore) GetBool(key string) bool {
	val, ok := s.Get(key)
	if !ok {
		return false
	}

	b, ok := val.(bool)
	if !ok {
		return false
	}
	return b
}

// GetStringSlice retrieves a string slice configuration value.
func (s *ConfigStore) GetStringSlice(key string) []string {
	val, ok := s.Get(key)
	if !ok {
		return nil
	}

	// TOML arrays are parsed as []any
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

// Set stores a configuration value and persists immediately.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return s.save()
}

// Delete removes a configuration value and persists immediately.
// Deleting an absent key is a no-op.
func (s *ConfigStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.save()
}

// Save persists the current configuration to disk.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save writes configuration to the TOML file (caller must hold lock).
func (s *ConfigStore) save() error {
	data, err := toml.Marshal(s.data)
	if err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Load reads configuration from the TOML file.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet - that's fine, start empty
			s.data = make(map[string]any)
			return nil
		}
		return err
	}

	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return err
	}

	if loaded == nil {
		loaded = make(map[string]any)
	}

	// Flatten nested maps into dot-notation keys for easier access
	s.data = flattenMap(loaded, "")
	return nil
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			// Recursively flatten nested maps
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}
