package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap/zapcore"
)

const (
	StoreKindPostgres = "postgres"
	StoreKindMemory   = "memory"

	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"

	EmailDriverLog  = "log"
	EmailDriverSMTP = "smtp"

	EnvProduction = "production"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	Security SecurityConfig `env:",prefix="`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Email    EmailConfig    `env:",prefix=EMAIL_"`
	Env      string         `env:"ENV,default=development"`
	Store    string         `env:"STORE,default=postgres"`

	// LogLevel overrides the environment's default level when set.
	LogLevel string `env:"LOG_LEVEL"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host            string   `env:"HOST,default=localhost"`
	Port            string   `env:"PORT,default=5432"`
	User            string   `env:"USER,default=auth_service"`
	Password        string   `env:"PASSWORD,default=auth_service_password"`
	DBName          string   `env:"DB,default=auth_service_db"`
	SSLMode         string   `env:"SSLMODE,default=disable"`
	MaxOpenConns    int      `env:"MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int      `env:"MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime Duration `env:"CONN_MAX_LIFETIME,default=30m"`
	AutoMigrate     bool     `env:"AUTO_MIGRATE,default=true"`
}

type RedisConfig struct {
	Enabled  bool   `env:"ENABLED,default=true"`
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
	// DialTimeout and OpTimeout keep a slow Redis from stalling login.
	DialTimeout Duration `env:"DIAL_TIMEOUT,default=2s"`
	OpTimeout   Duration `env:"OP_TIMEOUT,default=500ms"`
}

type JWTConfig struct {
	Secret             string   `env:"SECRET,required"`
	Issuer             string   `env:"ISSUER,default=user-auth-service"`
	Audience           string   `env:"AUDIENCE,default=user-auth-clients"`
	AccessTokenExpiry  Duration `env:"ACCESS_TOKEN_EXPIRY,default=30m"`
	RefreshTokenExpiry Duration `env:"REFRESH_TOKEN_EXPIRY,default=7d"`
}

// SecurityConfig groups the credential policy knobs. The defaults are the
// values the service is specified against: 5 failures, 15 minute lockout,
// one hour reset tokens.
type SecurityConfig struct {
	PasswordHasher         string   `env:"PASSWORD_HASHER,default=bcrypt"`
	BCryptCost             int      `env:"BCRYPT_COST,default=12"`
	MaxFailedLoginAttempts int      `env:"MAX_FAILED_LOGIN_ATTEMPTS,default=5"`
	LockoutDuration        Duration `env:"LOCKOUT_DURATION,default=15m"`
	ResetTokenExpiry       Duration `env:"RESET_TOKEN_EXPIRY,default=1h"`
	OperationTimeout       Duration `env:"OPERATION_TIMEOUT,default=5s"`
	RevokeOnReuse          bool     `env:"REVOKE_ON_REUSE,default=false"`
	CleanupInterval        Duration `env:"CLEANUP_INTERVAL,default=1h"`
	RateLimitRequests      int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow        Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

type EmailConfig struct {
	Driver      string   `env:"DRIVER,default=log"`
	SMTPHost    string   `env:"SMTP_HOST,default=localhost"`
	SMTPPort    int      `env:"SMTP_PORT,default=587"`
	Username    string   `env:"USERNAME,default="`
	Password    string   `env:"PASSWORD,default="`
	FromAddress string   `env:"FROM_ADDRESS,default=no-reply@localhost"`
	FromName    string   `env:"FROM_NAME,default=User Auth Service"`
	ResetURL    string   `env:"RESET_URL,default=http://localhost:3000/reset-password"`
	Timeout     Duration `env:"TIMEOUT,default=10s"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// SMTPAddress returns the host:port pair of the mail relay.
func (e EmailConfig) SMTPAddress() string {
	return fmt.Sprintf("%s:%d", e.SMTPHost, e.SMTPPort)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration from an explicit key/value map instead of the
// process environment.
func LoadFrom(ctx context.Context, env map[string]string) (*Config, error) {
	return load(ctx, envconfig.MapLookuper(env))
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var config Config

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	switch c.Security.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		return fmt.Errorf("unsupported PASSWORD_HASHER %q", c.Security.PasswordHasher)
	}

	switch c.Email.Driver {
	case EmailDriverLog, EmailDriverSMTP:
	default:
		return fmt.Errorf("unsupported EMAIL_DRIVER %q", c.Email.Driver)
	}

	if c.Env == EnvProduction && c.Email.Driver == EmailDriverLog {
		return fmt.Errorf("EMAIL_DRIVER=%s is not allowed when ENV=%s", EmailDriverLog, EnvProduction)
	}

	switch c.Store {
	case StoreKindPostgres, StoreKindMemory:
	default:
		return fmt.Errorf("unsupported STORE %q", c.Store)
	}

	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	if c.Security.MaxFailedLoginAttempts < 1 {
		return fmt.Errorf("MAX_FAILED_LOGIN_ATTEMPTS must be positive")
	}

	if c.Security.OperationTimeout.Duration <= 0 {
		c.Security.OperationTimeout.Duration = 5 * time.Second
	}

	return nil
}
