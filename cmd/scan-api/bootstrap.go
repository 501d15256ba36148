package main

import (
	"fmt"
	"time"

	"github.com/pvaldebenito/scanbox/config"
	"github.com/pvaldebenito/scanbox/internal/storage/pgpackages"
)

func postgresConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

// Postgres suele tardar unos segundos en estar listo tras docker compose.
func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgpackages.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgpackages.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}
