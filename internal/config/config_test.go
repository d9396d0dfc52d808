package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults_Valid(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "boda-cache-v1.0.3", cfg.CacheName())
	assert.Contains(t, cfg.Manifest, "/index.html")
	assert.Contains(t, cfg.Manifest, cfg.PlaceholderImage)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"origin_url":            "http://origin.test",
		"cache_version":         "v2.0.0",
		"online_check_interval": "45s",
		"delivery_timeout":      int64(3 * time.Second),
		"outbox_dsn":            "json.db",
		"outbox_passphrase":     "from-json",
	})
	t.Setenv("BODA_OUTBOX_DSN", "env.db")
	t.Setenv("BODA_ALLOWED_HOSTS", "a.example,b.example")

	cfg, err := Load([]string{"-c", path, "-v", "v9", "-unknown", "x"})
	require.NoError(t, err)

	assert.Equal(t, "http://origin.test", cfg.OriginURL) // json
	assert.Equal(t, "v9", cfg.CacheVersion)              // flag beats json
	assert.Equal(t, "env.db", cfg.OutboxDSN)             // env beats json
	assert.Equal(t, "from-json", cfg.OutboxPassphrase)
	assert.Equal(t, 45*time.Second, cfg.OnlineCheckInterval)
	assert.Equal(t, 3*time.Second, cfg.DeliveryTimeout)
	assert.Empty(t, cmp.Diff([]string{"a.example", "b.example"}, cfg.AllowedHosts))
	assert.Equal(t, ":8080", cfg.HTTPAddr) // default survives
}

func TestLoad_IntervalFlagInSeconds(t *testing.T) {
	cfg, err := Load([]string{"-i", "10"})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing json file", args: []string{"-config", filepath.Join(t.TempDir(), "nope.json")}},
		{name: "bad interval flag", args: []string{"-i", "abc"}},
		{name: "invalid origin", args: []string{"-o", "::not a url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			require.Error(t, err)
		})
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.CacheBackend = "redis"
	cfg.RedisAddr = ""
	require.Error(t, cfg.Validate())

	cfg.CacheBackend = "tape"
	cfg.RedisAddr = "127.0.0.1:6379"
	require.Error(t, cfg.Validate())
}

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{"separate value", []string{"-c", "conf.json", "-a", "localhost"}, []string{"-c"}, []string{"-c", "conf.json"}},
		{"equals form", []string{"-config=alt.json", "-a", ":1"}, []string{"-config"}, []string{"-config=alt.json"}},
		{"flag without value", []string{"-c", "-a", ":1"}, []string{"-c"}, []string{"-c"}},
		{"unknown ignored", []string{"-x", "1", "positional"}, []string{"-c"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filterArgs(tt.args, tt.allowed))
		})
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration)

	require.NoError(t, json.Unmarshal([]byte(`2000000000`), &d))
	assert.Equal(t, 2*time.Second, d.Duration)

	require.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	require.Error(t, json.Unmarshal([]byte(`true`), &d))
}
