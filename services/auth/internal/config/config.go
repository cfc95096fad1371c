package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/rca-academy/school_mis/pkg/config"
	"github.com/rca-academy/school_mis/pkg/hash"
	"github.com/rca-academy/school_mis/pkg/tokens"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"auth-service"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"postgres"`
	DBSQLDriver string `env:"DB_SQL_DRIVER" envDefault:"pgx"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	JWTSecret       string        `env:"JWT_SECRET,required,notEmpty,unset"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	TokenLeeway     time.Duration `env:"TOKEN_LEEWAY" envDefault:"0s"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`

	OTPTTL              time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPMaxAttempts      int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	RecoveryMinDuration time.Duration `env:"RECOVERY_MIN_DURATION" envDefault:"400ms"`

	RedisURL          string   `env:"REDIS_URL"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	NotificationTopic string   `env:"NOTIFICATION_TOPIC" envDefault:"notification_events"`
	UserEventsTopic   string   `env:"USER_EVENTS_TOPIC" envDefault:"user_events"`

	SelfRegistrationRoles []string `env:"SELF_REGISTRATION_ROLES" envSeparator:"," envDefault:"STUDENT,TEACHER,PARENT,GUARDIAN"`
	LoginRatePerMinute    int      `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	SeedRoles             bool     `env:"SEED_ROLES" envDefault:"true"`
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := pkgconfig.Load(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case len(c.JWTSecret) < tokens.MinSecretLen:
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", tokens.MinSecretLen)
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	case c.RefreshTokenTTL <= c.AccessTokenTTL:
		return fmt.Errorf("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	case c.BcryptCost < hash.MinCost:
		return fmt.Errorf("BCRYPT_COST must be at least %d", hash.MinCost)
	case c.OTPTTL <= 0:
		return fmt.Errorf("OTP_TTL must be positive")
	case c.OTPMaxAttempts <= 0:
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	case c.DBDriver != "postgres" && c.DBDriver != "sqlite":
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite")
	}
	return nil
}
