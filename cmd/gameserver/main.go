// Package main provides the attribute server binary: it spawns the configured
// characters, applies their level stats and runs regeneration, replication
// and autosave until terminated.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/config"
	"github.com/cory-johannsen/datadrivengas/internal/game/character"
	"github.com/cory-johannsen/datadrivengas/internal/game/curve"
	"github.com/cory-johannsen/datadrivengas/internal/gameserver"
	"github.com/cory-johannsen/datadrivengas/internal/observability"
	"github.com/cory-johannsen/datadrivengas/internal/scripting"
	"github.com/cory-johannsen/datadrivengas/internal/server"
	"github.com/cory-johannsen/datadrivengas/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting attribute server",
		zap.Bool("authority", cfg.GameServer.Authority),
	)

	statsStart := time.Now()
	stats, err := curve.Load(cfg.GameServer.StatsTable)
	if err != nil {
		logger.Fatal("loading stats table", zap.Error(err))
	}
	logger.Info("stats table loaded",
		zap.String("path", cfg.GameServer.StatsTable),
		zap.Int("rows", stats.Len()),
		zap.Duration("elapsed", time.Since(statsStart)),
	)

	defs, err := character.LoadDefinitions(cfg.GameServer.CharactersDir)
	if err != nil {
		logger.Fatal("loading character definitions", zap.Error(err))
	}
	roster, err := gameserver.Spawn(defs, stats, cfg.GameServer.Authority, logger)
	if err != nil {
		logger.Fatal("spawning characters", zap.Error(err))
	}
	for _, c := range roster.All() {
		c := c
		c.Abilities().OnDeath(func() {
			logger.Info("character died",
				zap.String("character", c.DisplayName),
				zap.String("id", c.ID.String()),
			)
		})
	}
	logger.Info("characters spawned", zap.Int("count", roster.Len()))

	if cfg.Scripting.Root != "" {
		scriptMgr := scripting.NewManager(logger)
		scriptMgr.GetAttribute = roster.AttributeValue
		n, err := scriptMgr.LoadRoot(cfg.Scripting.Root, cfg.Scripting.InstructionLimit)
		if err != nil {
			logger.Fatal("loading scripts", zap.Error(err))
		}
		defer scriptMgr.Close()
		logger.Info("scripts loaded",
			zap.String("root", cfg.Scripting.Root),
			zap.Int("zones", n),
		)
	}

	lc := server.NewLifecycle(logger)

	lc.Add("regen", gameserver.NewRegenTicker(roster, cfg.GameServer.RegenInterval, logger))

	feed := gameserver.NewReplicationFeed("log", cfg.GameServer.ReplicationBuffer, logger)
	unwatch := feed.WatchRoster(roster)
	lc.Add("replication", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			drainFeed(ctx, feed, logger)
			return nil
		},
		StopFn: func() {
			unwatch()
			_ = feed.Close()
		},
	})

	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)

		repo := postgres.NewAttributeRepository(pool.DB())
		restored, err := restoreSnapshots(ctx, roster, repo)
		if err != nil {
			logger.Fatal("restoring attribute snapshots", zap.Error(err))
		}
		logger.Info("attribute snapshots restored", zap.Int("count", restored))

		if cfg.GameServer.AutosaveInterval > 0 {
			lc.Add("autosave", gameserver.NewAutosaver(roster, repo,
				cfg.GameServer.AutosaveInterval, cfg.GameServer.AutosaveConcurrency, logger))
		}
	}

	logger.Info("attribute server ready",
		zap.Duration("startup", time.Since(start)),
	)
	if err := lc.Run(ctx); err != nil {
		logger.Error("attribute server stopped with error", zap.Error(err))
	}
}

// restoreSnapshots loads the persisted attributes of every roster character
// that has a saved snapshot.
func restoreSnapshots(ctx context.Context, roster *gameserver.Roster, repo *postgres.AttributeRepository) (int, error) {
	n := 0
	for _, c := range roster.All() {
		snap, err := repo.Load(ctx, c.ID)
		if errors.Is(err, postgres.ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		c.Do(func() { c.Restore(snap) })
		n++
	}
	return n, nil
}

// drainFeed logs replicated changes until ctx is done or the feed closes.
func drainFeed(ctx context.Context, feed *gameserver.ReplicationFeed, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-feed.Events():
			if !ok {
				return
			}
			logger.Debug("attribute replicated",
				zap.String("character", u.Character),
				zap.String("attribute", u.Change.Attribute.String()),
				zap.Float64("old", u.Change.Old),
				zap.Float64("new", u.Change.New),
			)
		}
	}
}
