package main

import (
	"net/http"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"bubbletactics/internal/config"
	"bubbletactics/internal/database"
	"bubbletactics/internal/game"
	"bubbletactics/internal/server"
	"bubbletactics/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	history, err := database.NewStore(cfg.SQLitePath, log)
	if err != nil {
		log.Fatalw("failed to open history database", "path", cfg.SQLitePath, "error", err)
	}
	defer history.Close()

	var st store.Store
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		st = store.NewRedis(rdb, log)
		log.Infow("using redis store", "addr", cfg.RedisAddr)
	} else {
		st = store.NewMemory(log)
		log.Infow("using in-memory store")
	}

	fetch := game.NewFetchAPI(st, log)
	write := game.NewWriteAPI(st, fetch, log)

	h := server.NewHandler(cfg, st, fetch, write, history, log)

	log.Infow("server starting", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, h.Router()); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}
