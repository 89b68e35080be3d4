package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/activity/common/logger"
	"basegraph.app/activity/common/otel"
	"basegraph.app/activity/core/config"
	"basegraph.app/activity/core/db"
	"basegraph.app/activity/internal/cache"
	"basegraph.app/activity/internal/service"
	"basegraph.app/activity/internal/store"
)

func main() {
	projectID := flag.Int64("project", 0, "GitLab project id to backfill")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *projectID <= 0 {
		slog.ErrorContext(ctx, "missing -project")
		os.Exit(2)
	}

	cfg, err := config.Load(config.ServiceTypeImporter)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	logger.Setup(cfg)

	os.Exit(run(ctx, cfg, *projectID, telemetry))
}

func run(ctx context.Context, cfg config.Config, projectID int64, telemetry *otel.Telemetry) int {
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "telemetry shutdown failed", "error", err)
		}
	}()

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		return 1
	}
	defer database.Close()

	source, err := service.NewGitLabEventSource(cfg.GitLab.URL, cfg.GitLab.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create gitlab client", "error", err)
		return 1
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		return 1
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Membership changes must drop the roles the feed has cached.
	roles := cache.NewRoleCache(redisClient, store.NewStores(database.Querier()).Members(), cfg.Redis.RoleCacheTTL, nil)

	importer := service.NewImporter(source, service.NewTxRunner(database), roles, nil)
	result, err := importer.ImportProject(ctx, projectID)
	if err != nil {
		slog.ErrorContext(ctx, "import failed", "error", err, "project_id", projectID)
		return 1
	}

	slog.InfoContext(ctx, "import complete",
		"project_id", projectID,
		"imported", result.Imported,
		"existing", result.Existing,
		"skipped", result.Skipped,
		"members_changed", result.Members)
	return 0
}
