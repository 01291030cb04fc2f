package config

import "time"

// Config holds runtime settings for the bizledger CLI.
//
// Fields:
//   - ServerBaseURL: base URL of the HTTP API, e.g. http://127.0.0.1:8080.
//   - CallTimeout: deadline of every outbound call, rotation included.
type Config struct {
	ServerBaseURL string
	CallTimeout   time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.CallTimeout = 10 * time.Second
}

// LoadConfig applies defaults, then overlays the JSON file at path when path
// is not empty. Command-line flags are applied by the caller.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}
	if err := parseJson(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
