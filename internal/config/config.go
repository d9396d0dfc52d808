// Package config handles configuration for the boda edge and console,
// including defaults, JSON overlay, environment overlay, command-line flags
// and validation.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings shared by the edge server and the console.
//
// Fields:
//   - HTTPAddr / GRPCAddr: bind addresses of the edge and its health service.
//   - OriginURL: the static site the edge fronts; relative manifest entries
//     and intercepted paths resolve against it.
//   - CachePrefix + CacheVersion: the current cache name. Bumping the version
//     creates a new cache and evicts every other one at activation.
//   - Manifest: assets precached at install.
//   - AllowedHosts: cross-origin hosts whose GET requests are intercepted.
//   - BypassPatterns: URL substrings that are never intercepted (analytics).
//   - CacheBackend: memory, redis or s3.
//   - SubmissionEndpoint: where RSVP payloads are posted.
//   - OutboxDSN: SQLite path (optionally sqlite://) or postgres:// DSN.
//   - OutboxPassphrase: when set, payloads are encrypted at rest.
//   - SecretKey: HMAC secret for admin JWTs. Do not use the default in prod.
type Config struct {
	HTTPAddr string `validate:"required"`
	GRPCAddr string `validate:"required"`

	OriginURL        string        `validate:"required,url"`
	CachePrefix      string        `validate:"required"`
	CacheVersion     string        `validate:"required"`
	Manifest         []string      `validate:"required,min=1,dive,required"`
	AllowedHosts     []string      `validate:"dive,required"`
	BypassPatterns   []string      `validate:"dive,required"`
	OfflinePage      string        `validate:"required,startswith=/"`
	PlaceholderImage string        `validate:"required,startswith=/"`
	MaxAssetBytes    int64         `validate:"gt=0"`
	FetchTimeout     time.Duration `validate:"gt=0"`

	CacheBackend   string `validate:"oneof=memory redis s3"`
	RedisAddr      string `validate:"required_if=CacheBackend redis"`
	RedisPassword  string
	RedisDB        int    `validate:"gte=0"`
	RedisNamespace string `validate:"required_if=CacheBackend redis"`
	S3Bucket       string `validate:"required_if=CacheBackend s3"`
	S3Region       string `validate:"required_if=CacheBackend s3"`
	S3RootUser     string
	S3RootPassword string
	S3BaseEndpoint string
	S3Prefix       string

	SubmissionEndpoint string        `validate:"omitempty,url"`
	DeliveryTimeout    time.Duration `validate:"gt=0"`
	OutboxDSN          string        `validate:"required"`
	OutboxPassphrase   string

	OnlineCheckInterval    time.Duration `validate:"gt=0"`
	PeriodicUpdateInterval time.Duration `validate:"gt=0"`
	ResyncInitialBackoff   time.Duration `validate:"gt=0"`
	ResyncMaxBackoff       time.Duration `validate:"gtefield=ResyncInitialBackoff"`

	SecretKey          string        `validate:"required"`
	AdminTokenValidity time.Duration `validate:"gt=0"`

	OTLPEndpoint string `validate:"omitempty,url"`
	LogLevel     string `validate:"omitempty,oneof=debug info warn error"`
}

// DefaultManifest is the app shell precached at install.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/manifest.json",

	"/css/styles.css",
	"/css/intro.css",
	"/css/animations.css",
	"/css/responsive.css",

	"/js/intro.js",
	"/js/main.js",
	"/js/countdown.js",
	"/js/form.js",
	"/js/animations.js",

	"https://fonts.googleapis.com/css2?family=Dancing+Script:wght@400;700&family=Playfair+Display:ital,wght@0,400;0,700;1,400&family=Raleway:wght@300;400;500;600&display=swap",
	"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.4.0/css/all.min.css",

	"/assets/images/favicon.ico",
	"/assets/images/hero-poster.jpg",
	"/assets/images/location.jpg",
	"/assets/images/og-image.jpg",
	"/assets/images/placeholder.jpg",

	"/assets/audio/background-music.mp3",
}

// LoadDefaults populates Config with development defaults.
// NOTE: SecretKey and the S3 credentials are insecure and must be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"

	c.OriginURL = "http://127.0.0.1:8000"
	c.CachePrefix = "boda-cache-"
	c.CacheVersion = "v1.0.3"
	c.Manifest = append([]string(nil), DefaultManifest...)
	c.AllowedHosts = []string{"fonts.googleapis.com", "fonts.gstatic.com", "cdnjs.cloudflare.com"}
	c.BypassPatterns = []string{"google-analytics", "gtag"}
	c.OfflinePage = "/index.html"
	c.PlaceholderImage = "/assets/images/placeholder.jpg"
	c.MaxAssetBytes = 32 << 20
	c.FetchTimeout = 15 * time.Second

	c.CacheBackend = "memory"
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisNamespace = "boda"
	c.S3Bucket = "boda-cache"
	c.S3Region = "us-east-1"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"

	c.SubmissionEndpoint = ""
	c.DeliveryTimeout = 10 * time.Second
	c.OutboxDSN = "data/outbox.db"

	c.OnlineCheckInterval = 30 * time.Second
	c.PeriodicUpdateInterval = 12 * time.Hour
	c.ResyncInitialBackoff = 5 * time.Second
	c.ResyncMaxBackoff = 10 * time.Minute

	c.SecretKey = "secretKey"
	c.AdminTokenValidity = time.Hour

	c.LogLevel = "info"
}

// CacheName is the name of the cache for the current version.
func (c *Config) CacheName() string {
	return c.CachePrefix + c.CacheVersion
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load builds a Config by applying defaults, then overlaying values from an
// optional JSON file (-c / -config), the BODA_* environment and finally the
// command-line flags in args. Later sources take precedence.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
