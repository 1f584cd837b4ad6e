package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	MemberStoreMongo    = "mongo"
	MemberStorePostgres = "postgres"
)

type Config struct {
	Port            string        `env:"PORT,             default=8080"`
	Env             string        `env:"ENV,              default=development"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`

	Auth     AuthConfig
	Members  MembersConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Profile  ProfileConfig
}

type AuthConfig struct {
	URL                 string        `env:"AUTH_URL"`
	APIKey              string        `env:"AUTH_API_KEY"`
	JWTSecret           string        `env:"AUTH_JWT_SECRET"`
	Timeout             time.Duration `env:"AUTH_TIMEOUT,               default=10s"`
	RefreshMargin       time.Duration `env:"AUTH_REFRESH_MARGIN,        default=30s"`
	AutoRefreshInterval time.Duration `env:"AUTH_AUTO_REFRESH_INTERVAL, default=10s"`
}

type MembersConfig struct {
	Store string `env:"MEMBER_STORE, default=mongo"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=memberdash"`
}

type PostgresConfig struct {
	DSN          string `env:"POSTGRES_DSN"`
	MaxOpenConns int    `env:"POSTGRES_MAX_OPEN_CONNS, default=10"`
}

// RedisConfig backs the local store. An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,     default=0"`
	Prefix   string `env:"REDIS_PREFIX, default=memberdash:"`
}

type CacheConfig struct {
	Size int           `env:"CACHE_SIZE, default=256"`
	TTL  time.Duration `env:"CACHE_TTL,  default=5m"`
}

type ProfileConfig struct {
	MaxAttempts int `env:"PROFILE_MAX_ATTEMPTS, default=2"`
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.URL) == "" {
		errs = append(errs, errors.New("AUTH_URL is required"))
	}
	switch c.Members.Store {
	case MemberStoreMongo:
	case MemberStorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when MEMBER_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("MEMBER_STORE must be %q or %q, got %q", MemberStoreMongo, MemberStorePostgres, c.Members.Store))
	}
	if c.Profile.MaxAttempts < 1 {
		errs = append(errs, errors.New("PROFILE_MAX_ATTEMPTS must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
