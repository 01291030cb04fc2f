package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_JSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *Config
	}{
		{
			name: "all keys",
			body: `{"server_base_url":"https://api.example","call_timeout":"3s"}`,
			want: &Config{ServerBaseURL: "https://api.example", CallTimeout: 3 * time.Second},
		},
		{
			name: "integer nanoseconds",
			body: `{"call_timeout":1500000000}`,
			want: &Config{ServerBaseURL: "http://127.0.0.1:8080", CallTimeout: 1500 * time.Millisecond},
		},
		{
			name: "absent keys keep defaults",
			body: `{}`,
			want: &Config{ServerBaseURL: "http://127.0.0.1:8080", CallTimeout: 10 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeTempJSON(t, tt.body))
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.want, cfg))
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = LoadConfig(writeTempJSON(t, `{ this is not valid json`))
	require.Error(t, err)
}
