package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rhythmcheck/backend/internal/attempts"
	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/config"
	"github.com/rhythmcheck/backend/internal/database"
	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/gamification"
	"github.com/rhythmcheck/backend/internal/httpapi"
	"github.com/rhythmcheck/backend/internal/models"
	"github.com/rhythmcheck/backend/internal/ranking"
)

// app is the wired service graph shared by the subcommands.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *sql.DB
	redis  *redis.Client
	authn  *auth.Authenticator
	config *gameconfig.Service
	ledger *gamification.Ledger
	grader *attempts.Service
	ranker *ranking.Service
}

// newApp opens the configured backends and wires every service. Without a
// database URL all state lives in memory for the life of the process.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:   cfg,
		log:   log,
		authn: auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
	}

	var (
		stats      gamification.StatsStore
		catalog    gamification.AchievementCatalog
		cfgStore   gameconfig.Store
		eventStore gameconfig.EventStore
		recordings attempts.RecordingStore
		history    attempts.AttemptStore
		profiles   attempts.ProfileStore
	)
	if cfg.UsesPostgres() {
		db, err := database.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.db = db
		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(db); err != nil {
				a.Close()
				return nil, err
			}
		}
		pgConfig := gameconfig.NewPostgresStore(db)
		pgAttempts := attempts.NewStore(db)
		stats, catalog = gamification.NewStore(db), gamification.NewCatalog(db)
		cfgStore, eventStore = pgConfig, pgConfig
		recordings, history, profiles = pgAttempts, pgAttempts, pgAttempts
		log.Info("using postgres stores")
	} else {
		memConfig := gameconfig.NewMemoryStore()
		memAttempts := attempts.NewMemoryStore()
		stats, catalog = gamification.NewMemoryStore(), gamification.NewMemoryCatalog(nil)
		cfgStore, eventStore = memConfig, memConfig
		recordings, history, profiles = memAttempts, memAttempts, memAttempts
		log.Warn("database.url not set, state is kept in memory only")
	}

	var locker gamification.Locker
	if cfg.UsesRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		locker = gamification.NewRedisLocker(a.redis, cfg.Redis.LockTTL)
		log.Info("using redis learner locks", slog.String("addr", cfg.Redis.Addr))
	}

	if err := seedCatalog(ctx, catalog, cfg.Gamification.CatalogFile); err != nil {
		a.Close()
		return nil, err
	}

	a.config = gameconfig.NewService(cfgStore, eventStore, log)
	a.ledger = gamification.NewLedger(stats, catalog, a.config, a.config, locker, log)
	a.grader = attempts.NewService(recordings, history, profiles, a.config, a.ledger, log)
	a.ranker = ranking.NewService(history, profiles, a.config, cfg.Gamification.LeaderboardTTL, log)
	return a, nil
}

func seedCatalog(ctx context.Context, catalog gamification.AchievementCatalog, path string) error {
	var (
		achievements []models.Achievement
		err          error
	)
	if path == "" {
		achievements, err = gamification.DefaultCatalog()
	} else {
		var data []byte
		if data, err = os.ReadFile(path); err != nil {
			return fmt.Errorf("read achievement catalog: %w", err)
		}
		achievements, err = gamification.ParseCatalog(data)
	}
	if err != nil {
		return fmt.Errorf("load achievement catalog: %w", err)
	}
	return gamification.SeedCatalog(ctx, catalog, achievements)
}

func (a *app) handlers() httpapi.Handlers {
	return httpapi.Handlers{
		Attempts:     attempts.NewHandler(a.grader),
		Gamification: gamification.NewHandler(a.ledger, a.cfg.Gamification.RecheckConcurrency),
		Ranking:      ranking.NewHandler(a.ranker),
		Config:       gameconfig.NewHandler(a.config),
	}
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("close redis", slog.String("error", err.Error()))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("close database", slog.String("error", err.Error()))
		}
	}
}
