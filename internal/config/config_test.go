package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-characters-long"

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), map[string]string{"JWT_SECRET": testSecret})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.True(t, cfg.Postgres.AutoMigrate)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.OpTimeout.Duration)

	assert.Equal(t, "user-auth-service", cfg.JWT.Issuer)
	assert.Equal(t, "user-auth-clients", cfg.JWT.Audience)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTokenExpiry.Duration)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTokenExpiry.Duration)

	assert.Equal(t, HasherBcrypt, cfg.Security.PasswordHasher)
	assert.Equal(t, 12, cfg.Security.BCryptCost)
	assert.Equal(t, 5, cfg.Security.MaxFailedLoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Security.LockoutDuration.Duration)
	assert.Equal(t, time.Hour, cfg.Security.ResetTokenExpiry.Duration)
	assert.False(t, cfg.Security.RevokeOnReuse)

	assert.Equal(t, EmailDriverLog, cfg.Email.Driver)
	assert.Equal(t, StoreKindPostgres, cfg.Store)
	assert.Equal(t, "development", cfg.Env)
	assert.Empty(t, cfg.LogLevel)
	assert.NotEmpty(t, cfg.CORS.AllowedOrigins)
	assert.NotEmpty(t, cfg.CORS.AllowedMethods)
}

func TestLoadWithCustomValues(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), map[string]string{
		"JWT_SECRET":                testSecret,
		"SERVER_PORT":               "9090",
		"POSTGRES_HOST":             "postgres.example.com",
		"JWT_ACCESS_TOKEN_EXPIRY":   "15m",
		"LOCKOUT_DURATION":          "1d",
		"MAX_FAILED_LOGIN_ATTEMPTS": "3",
		"PASSWORD_HASHER":           "argon2id",
		"EMAIL_DRIVER":              "smtp",
		"EMAIL_SMTP_HOST":           "mail.example.com",
		"EMAIL_SMTP_PORT":           "2525",
		"STORE":                     "memory",
		"ENV":                       "production",
	})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres.example.com", cfg.Postgres.Host)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenExpiry.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Security.LockoutDuration.Duration)
	assert.Equal(t, 3, cfg.Security.MaxFailedLoginAttempts)
	assert.Equal(t, HasherArgon2id, cfg.Security.PasswordHasher)
	assert.Equal(t, "mail.example.com:2525", cfg.Email.SMTPAddress())
	assert.Equal(t, StoreKindMemory, cfg.Store)
	assert.Equal(t, "production", cfg.Env)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"log email driver in production", map[string]string{"JWT_SECRET": testSecret, "ENV": "production"}},
		{"bad log level", map[string]string{"JWT_SECRET": testSecret, "LOG_LEVEL": "loud"}},
		{"unknown hasher", map[string]string{"JWT_SECRET": testSecret, "PASSWORD_HASHER": "md5"}},
		{"unknown email driver", map[string]string{"JWT_SECRET": testSecret, "EMAIL_DRIVER": "carrier-pigeon"}},
		{"unknown store", map[string]string{"JWT_SECRET": testSecret, "STORE": "mongo"}},
		{"zero attempts", map[string]string{"JWT_SECRET": testSecret, "MAX_FAILED_LOGIN_ATTEMPTS": "0"}},
		{"bad duration", map[string]string{"JWT_SECRET": testSecret, "LOCKOUT_DURATION": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), tt.env)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromProcessEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SERVER_HOST", "127.0.0.1")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestDurationDecode(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"15m", 15 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"", 0, false},
		{"xd", 0, true},
		{"-1d", 0, true},
		{"-5m", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.EnvDecode(context.Background(), tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	pg := PostgresConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "test_user",
		Password: "test_password",
		DBName:   "test_db",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=test_user password=test_password dbname=test_db sslmode=disable",
		pg.DSN(),
	)
}

func TestRedisAddress(t *testing.T) {
	assert.Equal(t, "localhost:6379", RedisConfig{Host: "localhost", Port: "6379"}.Address())
}
