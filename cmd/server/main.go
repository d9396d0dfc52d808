package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/boda/internal/buildinfo"
	"github.com/dmitrijs2005/boda/internal/config"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/server"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "shutdown error", "error", err)
	}

}
