package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pvaldebenito/scanbox/config"
)

func main() {
	// credenciales MELI_* desde un .env junto al binario, si existe
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("error al leer el config, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := newSyncer(cfg, defaultWorkerFactories())

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.ScanBox.WorkerHTTPAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			syncer:      s,
			cfg:         cfg,
		})
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- s.Run(ctx)
	}()

	select {
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			panic(err)
		}
	case err := <-httpErr:
		if err != nil && err != context.Canceled {
			panic(err)
		}
	}
}
