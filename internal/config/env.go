package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors the overridable Config fields. Pointers distinguish
// "unset" from zero values so defaults and the JSON overlay survive.
type envConfig struct {
	HTTPAddr *string `env:"HTTP_ADDR"`
	GRPCAddr *string `env:"GRPC_ADDR"`

	OriginURL      *string        `env:"ORIGIN_URL"`
	CacheVersion   *string        `env:"CACHE_VERSION"`
	Manifest       []string       `env:"MANIFEST" envSeparator:","`
	AllowedHosts   []string       `env:"ALLOWED_HOSTS" envSeparator:","`
	FetchTimeout   *time.Duration `env:"FETCH_TIMEOUT"`
	CacheBackend   *string        `env:"CACHE_BACKEND"`
	RedisAddr      *string        `env:"REDIS_ADDR"`
	RedisPassword  *string        `env:"REDIS_PASSWORD"`
	S3Bucket       *string        `env:"S3_BUCKET"`
	S3Region       *string        `env:"S3_REGION"`
	S3RootUser     *string        `env:"S3_ROOT_USER"`
	S3RootPassword *string        `env:"S3_ROOT_PASSWORD"`
	S3BaseEndpoint *string        `env:"S3_BASE_ENDPOINT"`

	SubmissionEndpoint *string        `env:"SUBMISSION_ENDPOINT"`
	DeliveryTimeout    *time.Duration `env:"DELIVERY_TIMEOUT"`
	OutboxDSN          *string        `env:"OUTBOX_DSN"`
	OutboxPassphrase   *string        `env:"OUTBOX_PASSPHRASE"`

	OnlineCheckInterval    *time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	PeriodicUpdateInterval *time.Duration `env:"PERIODIC_UPDATE_INTERVAL"`

	SecretKey    *string `env:"SECRET_KEY"`
	OTLPEndpoint *string `env:"OTLP_ENDPOINT"`
	LogLevel     *string `env:"LOG_LEVEL"`
}

// envPrefix namespaces every variable, e.g. BODA_ORIGIN_URL.
const envPrefix = "BODA_"

// parseEnv overlays cfg with BODA_* environment variables.
func parseEnv(cfg *Config) error {
	var ec envConfig
	if err := env.ParseWithOptions(&ec, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setPtr(&cfg.HTTPAddr, ec.HTTPAddr)
	setPtr(&cfg.GRPCAddr, ec.GRPCAddr)
	setPtr(&cfg.OriginURL, ec.OriginURL)
	setPtr(&cfg.CacheVersion, ec.CacheVersion)
	setStrings(&cfg.Manifest, ec.Manifest)
	setStrings(&cfg.AllowedHosts, ec.AllowedHosts)
	setPtr(&cfg.FetchTimeout, ec.FetchTimeout)
	setPtr(&cfg.CacheBackend, ec.CacheBackend)
	setPtr(&cfg.RedisAddr, ec.RedisAddr)
	setPtr(&cfg.RedisPassword, ec.RedisPassword)
	setPtr(&cfg.S3Bucket, ec.S3Bucket)
	setPtr(&cfg.S3Region, ec.S3Region)
	setPtr(&cfg.S3RootUser, ec.S3RootUser)
	setPtr(&cfg.S3RootPassword, ec.S3RootPassword)
	setPtr(&cfg.S3BaseEndpoint, ec.S3BaseEndpoint)
	setPtr(&cfg.SubmissionEndpoint, ec.SubmissionEndpoint)
	setPtr(&cfg.DeliveryTimeout, ec.DeliveryTimeout)
	setPtr(&cfg.OutboxDSN, ec.OutboxDSN)
	setPtr(&cfg.OutboxPassphrase, ec.OutboxPassphrase)
	setPtr(&cfg.OnlineCheckInterval, ec.OnlineCheckInterval)
	setPtr(&cfg.PeriodicUpdateInterval, ec.PeriodicUpdateInterval)
	setPtr(&cfg.SecretKey, ec.SecretKey)
	setPtr(&cfg.OTLPEndpoint, ec.OTLPEndpoint)
	setPtr(&cfg.LogLevel, ec.LogLevel)

	return nil
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
