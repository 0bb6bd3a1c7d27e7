package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	PublicBaseURL string `default:"" usage:"Base URL prepended to image paths in responses (e.g. https://cdn.example.com)" flag:"public-base-url"`
	UploadDir     string `default:"./uploads" usage:"Directory uploaded images are written to" flag:"upload-dir"`
	MaxImageSize  int64  `default:"5242880" usage:"Maximum size of one uploaded image in bytes" flag:"max-image-size"`
	MaxUploadSize int64  `default:"33554432" usage:"Maximum size of a whole multipart request in bytes" flag:"max-upload-size"`
	APIKeyPepper  string `usage:"HMAC pepper for API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	JWT           JWTConfig
	RateLimit     RateLimitConfig
	CustomerLimit CustomerLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// JWTConfig controls customer bearer token verification.
type JWTConfig struct {
	Secret string `usage:"HS256 secret customer tokens are signed with (STORE_JWT_SECRET)"`
	Issuer string `default:"" usage:"Expected token issuer; empty disables the check"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CustomerLimitConfig limits coupon validation and order placement per
// customer, which keeps coupon codes from being guessed.
type CustomerLimitConfig struct {
	Max    int           `default:"10" usage:"Coupon checks and orders per customer per window"`
	Window time.Duration `default:"1m" usage:"Customer limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a .env file when present, then configuration from
// environment variables, flags and YAML config files, and applies
// platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	case c.JWT.Secret == "":
		return errors.New("JWT secret is required: set STORE_JWT_SECRET")
	case c.MaxImageSize <= 0:
		return errors.New("max image size must be positive")
	case c.MaxUploadSize < c.MaxImageSize:
		return errors.New("max upload size must not be smaller than max image size")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	case c.CustomerLimit.Max <= 0 || c.CustomerLimit.Window <= 0:
		return errors.New("customer limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
