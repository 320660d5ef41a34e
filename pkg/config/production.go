package config

import (
	"os"
	"strconv"
	"time"
)

func loadProductionConfig(cfg *Config) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err == nil {
		cfg.ServerPort = port
	}

	if path := os.Getenv("DATABASE_FILE_PATH"); path != "" {
		cfg.DatabaseFilePath = path
	} else {
		cfg.DatabaseFilePath = "/data/syncbridge.sqlite"
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.ProviderBearerToken = os.Getenv("PROVIDER_BEARER_TOKEN")

	if retention, err := time.ParseDuration(os.Getenv("LOG_RETENTION")); err == nil {
		cfg.LogRetention = retention
	}
	if deadline, err := time.ParseDuration(os.Getenv("RUN_DEADLINE")); err == nil {
		cfg.RunDeadline = deadline
	}
	if interval, err := time.ParseDuration(os.Getenv("RESYNC_INTERVAL")); err == nil {
		cfg.ResyncInterval = interval
	}
	if procs, err := strconv.Atoi(os.Getenv("WORKER_PROCESSES")); err == nil {
		cfg.WorkerProcesses = procs
	}
}
