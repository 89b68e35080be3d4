package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/activity/common/logger"
	"basegraph.app/activity/core/config"
	"basegraph.app/activity/core/db"
	"basegraph.app/activity/internal/cache"
	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/model"
	"basegraph.app/activity/internal/service"
	"basegraph.app/activity/internal/store"
)

// feedLine is one printed event.
type feedLine struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Action    string    `json:"action"`
	Author    string    `json:"author,omitempty"`
	Title     string    `json:"title,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Commits   int       `json:"commits,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func main() {
	projectID := flag.Int64("project", 0, "project id")
	viewerID := flag.Int64("viewer", 0, "viewing user id; 0 for anonymous")
	limit := flag.Int("limit", 0, "max events; 0 uses FEED_DEFAULT_LIMIT")
	flag.Parse()

	ctx := context.Background()

	if *projectID <= 0 {
		slog.ErrorContext(ctx, "missing -project")
		os.Exit(2)
	}

	cfg, err := config.Load(config.ServiceTypeFeed)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Setup(cfg)

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	stores := store.NewStores(database.Querier())
	roles := cache.NewRoleCache(redisClient, stores.Members(), cfg.Redis.RoleCacheTTL, nil)
	feed := service.NewFeedService(stores.Events(), roles, cfg.Feed.DefaultLimit, nil)

	var viewer *model.User
	if *viewerID != 0 {
		viewer, err = stores.Users().GetByID(ctx, *viewerID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load viewer", "error", err, "viewer_id", *viewerID)
			os.Exit(1)
		}
	}

	events, err := feed.Recent(ctx, *projectID, viewer, *limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load feed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	for i := range events {
		if err := enc.Encode(render(&events[i])); err != nil {
			slog.ErrorContext(ctx, "failed to write event", "error", err)
			os.Exit(1)
		}
	}
}

func render(e *model.Event) feedLine {
	line := feedLine{
		ID:        e.ID,
		Action:    e.Action.String(),
		Author:    e.AuthorName(),
		Title:     e.Title,
		CreatedAt: e.CreatedAt,
	}

	kind, err := classifier.Classify(e)
	if err != nil {
		line.Kind = "malformed"
		return line
	}
	line.Kind = string(kind)

	switch {
	case e.IsIssue():
		line.Title = e.IssueTitle()
	case e.IsMergeRequest():
		line.Title = e.MergeRequestTitle()
	}

	if classifier.IsPush(e) {
		line.Commits = len(e.Commits())
		if name, err := classifier.BranchName(e); err == nil {
			line.Branch = name
		} else if name, err := classifier.TagName(e); err == nil {
			line.Tag = name
		} else if !errors.Is(err, classifier.ErrNotApplicable) {
			line.Kind = "malformed"
		}
	}
	return line
}
