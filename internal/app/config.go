package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/tradegate/internal/usage"
)

// DefaultDatabaseURL is used when neither TRADEGATE_DATABASE_URL nor
// DATABASE_URL is set.
const DefaultDatabaseURL = "sqlite:./data/tradegate.db"

const defaultAddr = "0.0.0.0:8080"

// Config holds the application configuration, loadable from environment
// variables (TRADEGATE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string          `default:"0.0.0.0:8080" usage:"API server listen address" yaml:"addr"`
	DatabaseURL string          `usage:"postgres:// or sqlite: database URL (TRADEGATE_DATABASE_URL or DATABASE_URL)" flag:"database-url" yaml:"database_url"`
	RateLimit   RateLimitConfig `env:"RATE_LIMIT" yaml:"rate_limit"`
	Auth        AuthConfig      `env:"AUTH" yaml:"auth"`
	Usage       usage.Config    `env:"USAGE" yaml:"usage"`
	CORS        CORSConfig      `env:"CORS" yaml:"cors"`
	Graceful    GracefulConfig  `env:"GRACEFUL" yaml:"graceful"`
}

// RateLimitConfig sets the per-minute ceilings. Zero disables a scope.
type RateLimitConfig struct {
	Global int `default:"1000" usage:"Max requests per minute across all callers" env:"GLOBAL" yaml:"global"`
	PerKey int `default:"100" usage:"Max requests per minute per API key" env:"PER_KEY" yaml:"per_key" flag:"per-key"`
}

// AuthConfig tunes credential verification.
type AuthConfig struct {
	MaxConcurrentVerify int64 `default:"16" usage:"Max concurrent Argon2id verifications (0 = unbounded)" flag:"max-concurrent-verify"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from flags, environment variables and YAML
// files.
func LoadConfig() (*Config, error) {
	return loadConfig(false, configFiles)
}

// LoadEnvConfig is LoadConfig without command line flags, for binaries that
// parse their own.
func LoadEnvConfig() (*Config, error) {
	return loadConfig(true, configFiles)
}

var configFiles = []string{"config.yaml", "/etc/tradegate/config.yaml"}

func loadConfig(skipFlags bool, files []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TRADEGATE",
		SkipFlags: skipFlags,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.RateLimit.Global < 0 || cfg.RateLimit.PerKey < 0 {
		return nil, errors.New("rate limits must not be negative")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL and PORT
// variables set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = DefaultDatabaseURL
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
