package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
env: test
storage:
  backend: redis
redis_connection:
  addressredis: "localhost:6379"
  password: "redis_pass"
  db: 1
  max_retries: 3
  dial_timeout: 5s
  timeoutredis: 10s
http_server:
  addresshttp: ":9090"
  timeouthttp: 30s
  idle_timeout: 60s
jwttoken:
  jwt_secret_key: "test_secret_key"
  token_ttl: 12h
  accept_legacy: false
quota:
  free_limit: 3
  link_bonus: 7
rate_limit:
  window: 30s
  anonymous: 2
  free: 4
  premium: 50
identity:
  cookie_name: "uid"
  fingerprint_min_len: 12
internal:
  api_key: "internal"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "localhost:6379", cfg.AddressRedis)
	assert.Equal(t, "redis_pass", cfg.Password)
	assert.Equal(t, 1, cfg.DB)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 10*time.Second, cfg.TimeoutRedis)
	assert.Equal(t, ":9090", cfg.AddressHTTP)
	assert.Equal(t, 30*time.Second, cfg.TimeoutHTTP)
	assert.Equal(t, "test_secret_key", cfg.JWTSecretKey)
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL)
	assert.False(t, cfg.AcceptLegacy)
	assert.Equal(t, 3, cfg.FreeLimit)
	assert.Equal(t, 7, cfg.LinkBonus)
	assert.Equal(t, 30*time.Second, cfg.Window)
	assert.Equal(t, 2, cfg.Anonymous)
	assert.Equal(t, 4, cfg.Free)
	assert.Equal(t, 50, cfg.Premium)
	assert.Equal(t, "uid", cfg.CookieName)
	assert.Equal(t, 12, cfg.FingerprintMinLen)
	assert.Equal(t, "internal", cfg.APIKey)
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, `
jwttoken:
  jwt_secret_key: "test_secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, ":8080", cfg.AddressHTTP)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.AcceptLegacy)
	assert.Equal(t, 5, cfg.FreeLimit)
	assert.Equal(t, 5, cfg.LinkBonus)
	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, 5, cfg.Anonymous)
	assert.Equal(t, 10, cfg.Free)
	assert.Equal(t, 100, cfg.Premium)
	assert.Equal(t, "safemessage_uid", cfg.CookieName)
	assert.Equal(t, 365*24*time.Hour, cfg.CookieMaxAge)
	assert.Equal(t, 8, cfg.FingerprintMinLen)
	assert.Equal(t, "billing.events", cfg.Queue)
	assert.Equal(t, "billing", cfg.Exchange)
	assert.Equal(t, "event", cfg.RoutingKey)
	assert.Equal(t, 10, cfg.Prefetch)
	assert.Equal(t, 10*time.Minute, cfg.PurgeInterval)
	assert.InDelta(t, 20.0, cfg.BurstRPS, 0.001)
	assert.Equal(t, 40, cfg.Burst)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing secret",
			content: "env: test\n",
		},
		{
			name: "unknown backend",
			content: `
storage:
  backend: etcd
jwttoken:
  jwt_secret_key: "s"
`,
		},
		{
			name: "redis backend without address",
			content: `
storage:
  backend: redis
jwttoken:
  jwt_secret_key: "s"
`,
		},
		{
			name: "postgres backend without dsn",
			content: `
storage:
  backend: postgres
jwttoken:
  jwt_secret_key: "s"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_FileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "from_env")
	path := writeConfig(t, `
storage:
  backend: redis
jwttoken:
  jwt_secret_key: "from_file"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "from_env", cfg.JWTSecretKey)
}
