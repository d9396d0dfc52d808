package config

import (
	"flag"
	"fmt"
	"time"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-g string   gRPC health bind address
//	-o string   origin URL of the static site
//	-v string   cache version label (e.g. "v1.0.3")
//	-e string   RSVP submission endpoint
//	-d string   outbox DSN (SQLite path or postgres:// URL)
//	-s string   admin JWT secret
//	-i int      online check interval, seconds
//	-l string   log level
//
// args is filtered down to these flags first so the JSON (-c) flag and
// flags owned by other components do not collide.
func parseFlags(cfg *Config, args []string) error {
	args = filterArgs(args, []string{"-a", "-g", "-o", "-v", "-e", "-d", "-s", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "address and port to run the edge")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "address and port of the gRPC health service")
	fs.StringVar(&cfg.OriginURL, "o", cfg.OriginURL, "origin URL")
	fs.StringVar(&cfg.CacheVersion, "v", cfg.CacheVersion, "cache version label")
	fs.StringVar(&cfg.SubmissionEndpoint, "e", cfg.SubmissionEndpoint, "RSVP submission endpoint")
	fs.StringVar(&cfg.OutboxDSN, "d", cfg.OutboxDSN, "outbox DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "admin token secret key")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		}
	})
	return nil
}
