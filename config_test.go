package browserstate

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
user_id: alice
local:
  path: /var/lib/browserstate
redis:
  addr: localhost:6379
  password: hunter2
  prefix: profiles
  format: tar.gz
  ttl: 24h
object_store:
  bucket: ""
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, "/var/lib/browserstate", cfg.Local.Path)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "profiles", cfg.Redis.Prefix)
	assert.Equal(t, "tar.gz", cfg.Redis.Format)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.True(t, cfg.ObjectStore.UseSSL)
	assert.Equal(t, BackendRedis, SelectBackend(cfg))
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BROWSERSTATE_USER_ID", "bob")
	t.Setenv("BROWSERSTATE_REDIS_DB", "3")
	t.Setenv("BROWSERSTATE_OBJECT_STORE_BUCKET", "profiles")
	t.Setenv("BROWSERSTATE_OBJECT_STORE_USE_SSL", "false")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.UserID)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "profiles", cfg.ObjectStore.Bucket)
	assert.False(t, cfg.ObjectStore.UseSSL)
	assert.Equal(t, BackendObjectStore, SelectBackend(cfg))
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"BROWSERSTATE_USER_ID":                    "user_id",
		"BROWSERSTATE_REDIS_ADDR":                 "redis.addr",
		"BROWSERSTATE_REDIS_TEMP_DIR":             "redis.temp_dir",
		"BROWSERSTATE_LOCAL_PATH":                 "local.path",
		"BROWSERSTATE_OBJECT_STORE_ACCESS_KEY_ID": "object_store.access_key_id",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, envKey(in), in)
	}
}

func TestEncodeConfigMasksSecrets(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	out, err := EncodeConfig(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	redis := decoded["redis"].(map[string]any)
	assert.Equal(t, redacted, redis["password"])
	assert.Equal(t, "24h0m0s", redis["ttl"])
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}
