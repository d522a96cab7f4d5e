package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"example.com/planboard/internal/bootstrap"
	"example.com/planboard/internal/config"
	"example.com/planboard/internal/directory"
	"example.com/planboard/internal/store"
)

func main() {
	// load local .env for convenience
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.MySQLDSN == "" {
		log.Fatal("MYSQL_DSN is required")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	stores, err := store.Open(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	dir := directory.NewClient(cfg.DirectoryURL, cfg.DirectoryServiceKey, 15*time.Second)
	boot := bootstrap.NewReserveAdmin(dir, stores.Memberships, stores.SuperAdmins,
		cfg.ReserveAdminEmail, cfg.ReserveAdminPassword, logger)

	if err := boot.Resync(context.Background()); err != nil {
		log.Fatalf("reserve admin resync failed: %v", err)
	}
	log.Println("reserve admin resynced")
}
