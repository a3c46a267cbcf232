package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  driver: sqlite3
`))
	require.NoError(t, err)

	assert.Equal(t, ModeDev, cfg.Mode)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "nalanda.db", cfg.DB.Path)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTExpire)
	assert.Equal(t, 3, cfg.Auth.CookieExpireDays)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1.0"
mode: release
server:
  addr: ":8443"
  cert: server.crt
  key: server.key
database:
  driver: mysql
  host: db
  user: nalanda
  password: pw
  dbname: library
auth:
  jwt_secret: s3cret
  jwt_expire: 2h
frontend_url: https://library.example.com/
`))
	require.NoError(t, err)

	assert.True(t, cfg.Server.TLS())
	assert.Equal(t, 3306, cfg.DB.Port)
	assert.Equal(t, 2*time.Hour, cfg.Auth.JWTExpire)
	assert.Equal(t, "https://library.example.com", cfg.FrontendURL)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv(EnvJWTSecret, "from-env")
	t.Setenv(EnvDBPassword, "db-env")
	t.Setenv(EnvSMTPPassword, "smtp-env")

	cfg, err := Parse([]byte(`
mode: release
database:
  driver: sqlite3
auth:
  jwt_secret: from-file
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "db-env", cfg.DB.Password)
	assert.Equal(t, "smtp-env", cfg.SMTP.Password)
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")

	tests := []struct {
		name string
		yaml string
	}{
		{"unknown mode", "mode: staging\ndatabase: {driver: sqlite3}\n"},
		{"unknown driver", "database: {driver: postgres}\n"},
		{"mysql without host", "database: {driver: mysql, dbname: x}\n"},
		{"release without secret", "mode: release\ndatabase: {driver: sqlite3}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite3\n  path: /tmp/x.db\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.DB.Path)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
