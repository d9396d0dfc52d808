package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations use
// Duration so the file may say "30s" or give nanoseconds. Only keys present
// in the file override the runtime Config.
type JsonConfig struct {
	HTTPAddr string `json:"http_addr"`
	GRPCAddr string `json:"grpc_addr"`

	OriginURL        string    `json:"origin_url"`
	CachePrefix      string    `json:"cache_prefix"`
	CacheVersion     string    `json:"cache_version"`
	Manifest         []string  `json:"manifest"`
	AllowedHosts     []string  `json:"allowed_hosts"`
	BypassPatterns   []string  `json:"bypass_patterns"`
	OfflinePage      string    `json:"offline_page"`
	PlaceholderImage string    `json:"placeholder_image"`
	MaxAssetBytes    int64     `json:"max_asset_bytes"`
	FetchTimeout     *Duration `json:"fetch_timeout"`

	CacheBackend   string `json:"cache_backend"`
	RedisAddr      string `json:"redis_addr"`
	RedisPassword  string `json:"redis_password"`
	RedisDB        *int   `json:"redis_db"`
	RedisNamespace string `json:"redis_namespace"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3Prefix       string `json:"s3_prefix"`

	SubmissionEndpoint string    `json:"submission_endpoint"`
	DeliveryTimeout    *Duration `json:"delivery_timeout"`
	OutboxDSN          string    `json:"outbox_dsn"`
	OutboxPassphrase   string    `json:"outbox_passphrase"`

	OnlineCheckInterval    *Duration `json:"online_check_interval"`
	PeriodicUpdateInterval *Duration `json:"periodic_update_interval"`
	ResyncInitialBackoff   *Duration `json:"resync_initial_backoff"`
	ResyncMaxBackoff       *Duration `json:"resync_max_backoff"`

	SecretKey          string    `json:"secret_key"`
	AdminTokenValidity *Duration `json:"admin_token_validity"`

	OTLPEndpoint string `json:"otlp_endpoint"`
	LogLevel     string `json:"log_level"`
}

// parseJson overlays cfg with values from the file named by -c / -config.
// Without the flag nothing is loaded. Read and decode errors are returned.
func parseJson(cfg *Config, args []string) error {
	path := jsonConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	jc.apply(cfg)
	return nil
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.HTTPAddr, jc.HTTPAddr)
	setString(&cfg.GRPCAddr, jc.GRPCAddr)

	setString(&cfg.OriginURL, jc.OriginURL)
	setString(&cfg.CachePrefix, jc.CachePrefix)
	setString(&cfg.CacheVersion, jc.CacheVersion)
	setStrings(&cfg.Manifest, jc.Manifest)
	setStrings(&cfg.AllowedHosts, jc.AllowedHosts)
	setStrings(&cfg.BypassPatterns, jc.BypassPatterns)
	setString(&cfg.OfflinePage, jc.OfflinePage)
	setString(&cfg.PlaceholderImage, jc.PlaceholderImage)
	if jc.MaxAssetBytes > 0 {
		cfg.MaxAssetBytes = jc.MaxAssetBytes
	}
	setDuration(&cfg.FetchTimeout, jc.FetchTimeout)

	setString(&cfg.CacheBackend, jc.CacheBackend)
	setString(&cfg.RedisAddr, jc.RedisAddr)
	setString(&cfg.RedisPassword, jc.RedisPassword)
	if jc.RedisDB != nil {
		cfg.RedisDB = *jc.RedisDB
	}
	setString(&cfg.RedisNamespace, jc.RedisNamespace)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3RootUser, jc.S3RootUser)
	setString(&cfg.S3RootPassword, jc.S3RootPassword)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3Prefix, jc.S3Prefix)

	setString(&cfg.SubmissionEndpoint, jc.SubmissionEndpoint)
	setDuration(&cfg.DeliveryTimeout, jc.DeliveryTimeout)
	setString(&cfg.OutboxDSN, jc.OutboxDSN)
	setString(&cfg.OutboxPassphrase, jc.OutboxPassphrase)

	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.PeriodicUpdateInterval, jc.PeriodicUpdateInterval)
	setDuration(&cfg.ResyncInitialBackoff, jc.ResyncInitialBackoff)
	setDuration(&cfg.ResyncMaxBackoff, jc.ResyncMaxBackoff)

	setString(&cfg.SecretKey, jc.SecretKey)
	setDuration(&cfg.AdminTokenValidity, jc.AdminTokenValidity)

	setString(&cfg.OTLPEndpoint, jc.OTLPEndpoint)
	setString(&cfg.LogLevel, jc.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setStrings(dst *[]string, v []string) {
	if v != nil {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
