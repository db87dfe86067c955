package main

import (
	"fmt"

	"thumbnail-service/internal/app/worker"
	"thumbnail-service/internal/config"

	"github.com/wb-go/wbf/zlog"
)

func main() {
	zlog.Init()

	if err := run(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Worker failed")
	}

	zlog.Logger.Info().Msg("Worker exited successfully")
}

func run() error {
	cfg, err := config.MustLoad()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	w, err := worker.NewWorker(cfg, &zlog.Logger)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	return w.Run()
}
