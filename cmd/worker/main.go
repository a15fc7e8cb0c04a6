package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Slade66/media-dedup-fetcher/internal/boot"
	"github.com/Slade66/media-dedup-fetcher/internal/catalog"
	"github.com/Slade66/media-dedup-fetcher/internal/config"
	"github.com/Slade66/media-dedup-fetcher/internal/logger"
	"github.com/Slade66/media-dedup-fetcher/internal/reconcile"
	"github.com/Slade66/media-dedup-fetcher/internal/status"
	"github.com/Slade66/media-dedup-fetcher/internal/worker"
	"github.com/Slade66/media-dedup-fetcher/pkg/task"
)

var (
	configPath   string
	downloadRoot string
)

// loadConfig 读取配置文件，--download-root 优先级最高
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	if downloadRoot != "" {
		cfg.Worker.DownloadRoot = downloadRoot
	}
	return cfg, logger.Init(cfg.Log.Level, cfg.Log.Format), nil
}

// runWorker 是 Worker 的主流程：连接依赖，然后一直处理任务直到收到退出信号
func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := boot.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()
	log.Info("connected to redis", slog.String("addr", cfg.Redis.Addr))

	cat, closeCatalog, err := boot.OpenCatalog(ctx, cfg.Catalog)
	if err != nil {
		return err
	}
	defer closeCatalog()
	log.Info("connected to catalog", slog.String("driver", cfg.Catalog.Driver))

	q, err := boot.NewQueue(ctx, rdb, cfg.Redis)
	if err != nil {
		return err
	}

	pipeline, err := boot.NewPipeline(cfg, cat, log)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	wcfg := worker.Config{
		IdleInterval: cfg.Worker.IdlePoll(),
		Logger:       log,
	}
	if !cfg.Redis.DisableStatus {
		ttl := time.Duration(cfg.Redis.StatusTTLSeconds) * time.Second
		wcfg.Reporters = append(wcfg.Reporters, status.NewManager(rdb, ttl))
	}

	w := worker.New(q, pipeline.Processor, wcfg)
	log.Info("worker listening",
		slog.String("queue", cfg.Redis.QueueKind),
		slog.String("download_root", cfg.Worker.DownloadRoot),
	)
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("worker stopped", slog.Int64("stored", pipeline.Processor.Stored()))
		return nil
	}
	return err
}

// runFetch 不经过队列，直接处理命令行给出的 URL
func runFetch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	cat, closeCatalog, err := boot.OpenCatalog(cmd.Context(), cfg.Catalog)
	if err != nil {
		return err
	}
	defer closeCatalog()

	pipeline, err := boot.NewPipeline(cfg, cat, log)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	var failed int
	for _, u := range args {
		ctx := logger.WithContext(cmd.Context(), log.With(slog.String("task", u)))
		res := pipeline.Processor.ProcessTask(ctx, task.New([]byte(u)))
		line := fmt.Sprintf("%s\t%s\t%s", res.Outcome, u, res.StoragePath)
		if res.Err != nil {
			failed++
			line += "\t" + res.Err.Error()
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(args))
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Catalog.Driver != "postgres" {
		return fmt.Errorf("migrate only applies to the postgres catalog (driver=%s)", cfg.Catalog.Driver)
	}
	return catalog.RunMigrate(log, cfg.Catalog.Postgres.DSN(), args[0])
}

func runOrphans(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cat, closeCatalog, err := boot.OpenCatalog(cmd.Context(), cfg.Catalog)
	if err != nil {
		return err
	}
	defer closeCatalog()

	pipeline, err := boot.NewPipeline(cfg, cat, logger.L)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	orphans, err := reconcile.NewScanner(pipeline.Layout, cat, pipeline.Fingerprint).Orphans(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, o := range orphans {
		if err := enc.Encode(o); err != nil {
			return err
		}
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "worker",
		Short:         "Pop media URLs from the task queue, download and deduplicate them",
		RunE:          runWorker,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config.toml")
	root.PersistentFlags().StringVar(&downloadRoot, "download-root", "", "download root directory (overrides config)")

	root.AddCommand(&cobra.Command{
		Use:   "fetch URL...",
		Short: "Process the given URLs once without the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFetch,
	})
	root.AddCommand(&cobra.Command{
		Use:       "migrate up|down|version",
		Short:     "Apply catalog schema migrations (postgres)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE:      runMigrate,
	})
	root.AddCommand(&cobra.Command{
		Use:   "orphans",
		Short: "List stored files that have no catalog record",
		RunE:  runOrphans,
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var se *boot.StartupError
		if errors.As(err, &se) {
			logger.L.Error("startup failed", slog.String("component", se.Component), slog.Any("error", se.Err))
		} else {
			logger.L.Error("worker exited", slog.Any("error", err))
		}
		os.Exit(1)
	}
}
