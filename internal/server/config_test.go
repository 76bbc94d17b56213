package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskflow/internal/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"CONFIG", "ADDR", "PORT", "STORE_DRIVER", "DB_STR", "MIGRATE_PATH", "MONGO_URL", "MONGO_DB",
	"JWT_SECRET", "TOKEN_TTL", "COOKIE_NAME", "APP_ENV", "ALLOWED_ORIGINS", "LOG_LEVEL", "STORE_TIMEOUT",
}

// clearConfigEnv blanks every variable ReadConfig looks at for the duration
// of the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := ReadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "jwt_token", cfg.CookieName)
	assert.False(t, cfg.Production())
}

func TestReadConfigPrecedence(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
		args []string
		want struct {
			port   int
			addr   string
			secret string
			store  string
			ttl    time.Duration
		}
	}{
		{
			name: "file overrides defaults",
			file: `{"port": 9000, "jwt_secret": "from-file", "token_ttl": "1h"}`,
			want: struct {
				port   int
				addr   string
				secret string
				store  string
				ttl    time.Duration
			}{port: 9000, addr: "0.0.0.0", secret: "from-file", store: "postgres", ttl: time.Hour},
		},
		{
			name: "env overrides file",
			file: `{"port": 9000, "jwt_secret": "from-file"}`,
			env:  map[string]string{"PORT": "9100", "JWT_SECRET": "from-env", "STORE_DRIVER": "memory"},
			want: struct {
				port   int
				addr   string
				secret string
				store  string
				ttl    time.Duration
			}{port: 9100, addr: "0.0.0.0", secret: "from-env", store: "memory", ttl: 168 * time.Hour},
		},
		{
			name: "explicit flags override env",
			file: `{"port": 9000}`,
			env:  map[string]string{"PORT": "9100", "ADDR": "10.0.0.1"},
			args: []string{"-port", "9200", "-secret", "from-flag", "-token-ttl", "30m"},
			want: struct {
				port   int
				addr   string
				secret string
				store  string
				ttl    time.Duration
			}{port: 9200, addr: "10.0.0.1", secret: "from-flag", store: "postgres", ttl: 30 * time.Minute},
		},
		{
			name: "unset flags do not reset lower layers",
			env:  map[string]string{"PORT": "9100", "STORE_DRIVER": "mongo"},
			args: []string{"-addr", "127.0.0.1"},
			want: struct {
				port   int
				addr   string
				secret string
				store  string
				ttl    time.Duration
			}{port: 9100, addr: "127.0.0.1", store: "mongo", ttl: 168 * time.Hour},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			if tt.file != "" {
				t.Setenv("CONFIG", writeConfigFile(t, tt.file))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := ReadConfig(tt.args)
			require.NoError(t, err)

			assert.Equal(t, tt.want.port, cfg.Port)
			assert.Equal(t, tt.want.addr, cfg.Addr)
			assert.Equal(t, tt.want.secret, cfg.JWTSecret)
			assert.Equal(t, tt.want.store, cfg.StoreDriver)
			assert.Equal(t, tt.want.ttl, cfg.TokenTTL)
		})
	}
}

func TestReadConfigFileFlagWinsOverEnvPath(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONFIG", writeConfigFile(t, `{"addr": "from-env-path"}`))
	flagPath := writeConfigFile(t, `{"addr": "from-flag-path"}`)

	cfg, err := ReadConfig([]string{"-c", flagPath})
	require.NoError(t, err)
	assert.Equal(t, "from-flag-path", cfg.Addr)
}

func TestReadConfigOrigins(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com,https://admin.example.com")
	t.Setenv("APP_ENV", "production")

	cfg, err := ReadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Production())
}

func TestReadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
		args []string
		want error
	}{
		{name: "missing file", env: map[string]string{"CONFIG": "/nonexistent/config.json"}, want: errors.ErrConfigFileReadFailed},
		{name: "broken json", file: `{"port": `, want: errors.ErrConfigParseFailed},
		{name: "bad duration in file", file: `{"token_ttl": "a week"}`, want: errors.ErrConfigParseFailed},
		{name: "non-numeric PORT", env: map[string]string{"PORT": "http"}, want: errors.ErrConfigInvalid},
		{name: "bad STORE_TIMEOUT", env: map[string]string{"STORE_TIMEOUT": "soon"}, want: errors.ErrConfigInvalid},
		{name: "unknown flag", args: []string{"-verbose"}, want: errors.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			if tt.file != "" {
				t.Setenv("CONFIG", writeConfigFile(t, tt.file))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := ReadConfig(tt.args)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.JWTSecret = "secret"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults with secret", mutate: func(*Config) {}, ok: true},
		{name: "memory driver", mutate: func(c *Config) { c.StoreDriver = DriverMemory; c.DBStr = "" }, ok: true},
		{name: "mongo driver", mutate: func(c *Config) { c.StoreDriver = DriverMongo; c.MongoURI = "mongodb://localhost:27017" }, ok: true},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = "" }},
		{name: "port zero", mutate: func(c *Config) { c.Port = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.Port = 65536 }},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "sqlite" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.DBStr = "" }},
		{name: "postgres without migrations", mutate: func(c *Config) { c.MigratePath = "" }},
		{name: "mongo without uri", mutate: func(c *Config) { c.StoreDriver = DriverMongo }},
		{name: "zero ttl", mutate: func(c *Config) { c.TokenTTL = 0 }},
		{name: "zero store timeout", mutate: func(c *Config) { c.StoreTimeout = 0 }},
		{name: "empty cookie name", mutate: func(c *Config) { c.CookieName = "" }},
		{name: "no allowed origins", mutate: func(c *Config) { c.AllowedOrigins = nil }},
		{name: "origin without scheme", mutate: func(c *Config) { c.AllowedOrigins = []string{"app.example.com"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errors.ErrConfigInvalid)
		})
	}
}
