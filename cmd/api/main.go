package main

import (
	"fmt"

	"thumbnail-service/internal/app"
	"thumbnail-service/internal/config"

	"github.com/wb-go/wbf/zlog"
)

func main() {
	zlog.Init()

	if err := run(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("API server failed")
	}
}

func run() error {
	cfg, err := config.MustLoad()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.NewApp(cfg, &zlog.Logger)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	return a.Run()
}
