package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Slade66/media-dedup-fetcher/internal/api"
	"github.com/Slade66/media-dedup-fetcher/internal/boot"
	"github.com/Slade66/media-dedup-fetcher/internal/config"
	"github.com/Slade66/media-dedup-fetcher/internal/fingerprint"
	"github.com/Slade66/media-dedup-fetcher/internal/logger"
	"github.com/Slade66/media-dedup-fetcher/internal/reconcile"
	"github.com/Slade66/media-dedup-fetcher/internal/status"
	"github.com/Slade66/media-dedup-fetcher/internal/storage"
)

func fatal(msg string, err error) {
	var se *boot.StartupError
	if errors.As(err, &se) {
		logger.L.Error("startup failed", slog.String("component", se.Component), slog.Any("error", se.Err))
	} else {
		logger.L.Error(msg, slog.Any("error", err))
	}
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}
	log := logger.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, closeCatalog, err := boot.OpenCatalog(ctx, cfg.Catalog)
	if err != nil {
		fatal("open catalog", err)
	}
	defer closeCatalog()

	fp, err := fingerprint.New(fingerprint.Algorithm(cfg.Worker.Fingerprint))
	if err != nil {
		fatal("fingerprint", err)
	}
	scanner := reconcile.NewScanner(storage.NewLayout(cfg.Worker.DownloadRoot), cat, fp)

	// Redis 不可用时仍然提供目录和孤立文件接口
	var statuses api.StatusStore
	if rdb, err := boot.OpenRedis(ctx, cfg.Redis); err != nil {
		log.Warn("task status disabled", slog.Any("error", err))
	} else {
		defer rdb.Close()
		statuses = status.NewManager(rdb, 0)
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.New(cat, scanner, statuses, cfg.Worker.Platform).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("api listening", slog.String("addr", cfg.API.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("serve", err)
	}
}
