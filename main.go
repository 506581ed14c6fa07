package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/obsxrver/tweetfilter/internal/blacklist"
	"github.com/obsxrver/tweetfilter/internal/cache"
	"github.com/obsxrver/tweetfilter/internal/config"
	"github.com/obsxrver/tweetfilter/internal/engine"
	"github.com/obsxrver/tweetfilter/internal/extract"
	"github.com/obsxrver/tweetfilter/internal/notify"
	"github.com/obsxrver/tweetfilter/internal/scheduler"
	"github.com/obsxrver/tweetfilter/internal/storage"
	"github.com/obsxrver/tweetfilter/internal/thread"
	"github.com/obsxrver/tweetfilter/internal/transport"
	"github.com/obsxrver/tweetfilter/internal/types"
	"github.com/obsxrver/tweetfilter/internal/watch"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("component", "main")

	// Load or create configuration
	cfg, err := config.Load()
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
			if err := cfg.Save(); err != nil {
				log.WithError(err).Warn("could not save default config")
			} else {
				path, _ := config.ConfigPath()
				log.WithField("path", path).Info("created default config")
			}
		} else {
			log.WithError(err).Warn("could not load config, using defaults")
			cfg = config.Default()
		}
	}

	if cfg.API.APIKey == "" {
		cfg.API.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.API.APIKey == "" {
		log.Fatal("no API key configured (set api.api_key or OPENROUTER_API_KEY)")
	}

	// Persistent rating store, in-memory fallback when sqlite fails
	var kv storage.KV
	var db *storage.SQLite
	dbPath, err := cfg.DBPath()
	if err == nil {
		db, err = storage.NewSQLite(dbPath)
	}
	if err != nil {
		log.WithError(err).Warn("sqlite unavailable, ratings will not persist")
		kv = storage.NewMemory()
	} else {
		kv = db
	}

	ratingCache := cache.New(kv, time.Duration(cfg.Cache.DebounceMs)*time.Millisecond)
	handles := blacklist.Load(kv)

	client := transport.NewOpenRouter(cfg.API.APIKey, cfg.API.BaseURL,
		time.Duration(cfg.API.TimeoutSeconds)*time.Second)

	pctx := engine.NewPipelineContext()
	builder := thread.New(pctx, ratingCache, cfg.Pipeline.MaxContextDepth)

	eng := engine.New(engine.Config{
		Model:        cfg.API.Model,
		Temperature:  cfg.API.Temperature,
		TopP:         cfg.API.TopP,
		MaxTokens:    cfg.API.MaxTokens,
		Streaming:    cfg.API.Streaming,
		MaxRetries:   cfg.Pipeline.MaxRetries,
		CallSpacing:  time.Duration(cfg.Pipeline.CallSpacingMs) * time.Millisecond,
		Instructions: cfg.Pipeline.Instructions,
	}, pctx, client, ratingCache, handles, builder, notify.NewLog(), engine.Events{
		OnRated: func(p *types.Post) {
			entry := logrus.WithFields(logrus.Fields{
				"post":   p.ID,
				"author": p.AuthorHandle,
				"state":  p.State,
			})
			if p.Rating != nil && p.Rating.Score != nil {
				entry = entry.WithField("score", *p.Rating.Score)
			}
			entry.Info("post rated")
		},
	})

	extractor := extract.New(cfg.Pipeline.MaxRetries,
		time.Duration(cfg.Pipeline.MediaRetryMs)*time.Millisecond)

	sched := scheduler.New(extractor, pctx, eng,
		time.Duration(cfg.Pipeline.SettleDelayMs)*time.Millisecond,
		time.Duration(cfg.Pipeline.FilterDelayMs)*time.Millisecond,
		func() {
			log.WithField("live", pctx.LiveCount()).Debug("filter pass requested")
		})

	// Nightly cache maintenance
	maint := cron.New()
	_, err = maint.AddFunc("0 4 * * *", func() {
		stats := ratingCache.Cleanup()
		ratingCache.Flush()
		log.WithFields(logrus.Fields{
			"streaming_incomplete": stats.StreamingIncomplete,
			"invalid":              stats.InvalidScore,
		}).Info("cache maintenance complete")
	})
	if err != nil {
		log.WithError(err).Warn("could not schedule cache maintenance")
	}
	maint.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("cache_entries", ratingCache.Size()).Info("tweetfilter starting")

	if cfg.Watch.Enabled {
		cookiePath, err := cfg.CookiePath()
		if err != nil {
			log.WithError(err).Warn("could not resolve cookie path, continuing without cookies")
			cookiePath = ""
		}
		watcher := watch.New(cfg.Watch.FeedURL,
			time.Duration(cfg.Watch.PollIntervalSec)*time.Second,
			cfg.Watch.Headless, cookiePath, sched)

		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("feed watcher stopped")
		}
	} else {
		log.Info("feed watcher disabled, waiting for shutdown signal")
		<-ctx.Done()
	}

	log.Info("shutting down")
	sched.Stop()
	maint.Stop()
	ratingCache.Flush()
	if db != nil {
		db.Close()
	}
}
