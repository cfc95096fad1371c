package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/school")
	t.Setenv("JWT_SECRET", secret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, []string{"STUDENT", "TEACHER", "PARENT", "GUARDIAN"}, cfg.SelfRegistrationRoles)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.True(t, cfg.SeedRoles)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "sqlite", cfg.DBDriver)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DBDriver:        "postgres",
			JWTSecret:       secret,
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
			BcryptCost:      12,
			OTPTTL:          time.Minute,
			OTPMaxAttempts:  5,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, want: "JWT_SECRET"},
		{name: "refresh shorter", mutate: func(c *Config) { c.RefreshTokenTTL = time.Minute }, want: "REFRESH_TOKEN_TTL"},
		{name: "weak bcrypt", mutate: func(c *Config) { c.BcryptCost = 10 }, want: "BCRYPT_COST"},
		{name: "bad driver", mutate: func(c *Config) { c.DBDriver = "mysql" }, want: "DB_DRIVER"},
		{name: "zero attempts", mutate: func(c *Config) { c.OTPMaxAttempts = 0 }, want: "OTP_MAX_ATTEMPTS"},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
