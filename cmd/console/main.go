package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/boda/internal/buildinfo"
	"github.com/dmitrijs2005/boda/internal/config"
	"github.com/dmitrijs2005/boda/internal/console"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/outbox"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	// keep log lines off the REPL output
	logger := logging.New(os.Stderr, cfg.LogLevel)

	ctx := context.Background()
	opts, err := outbox.PassphraseOptions(ctx, cfg.OutboxPassphrase, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	ob, err := outbox.Open(ctx, cfg.OutboxDSN, opts...)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer ob.Close()

	app, err := console.NewApp(cfg, ob, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
