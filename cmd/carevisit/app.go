package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"carevisit/internal/audit"
	"carevisit/internal/config"
	"carevisit/internal/events"
	"carevisit/internal/lock"
	"carevisit/internal/notify"
	"carevisit/internal/reconcile"
	"carevisit/internal/slots"
	"carevisit/internal/store"
)

// lockWait bounds how long an operation waits for a contended lock.
const lockWait = 3 * time.Second

// app is the wiring shared by all commands.
type app struct {
	cfg        *config.Config
	mu         sync.RWMutex
	facilities *config.FacilitiesConfig
	logger     zerolog.Logger
	db         *store.DB
	rdb        *redis.Client
	bus        *events.EventBus
	gate       *slots.Gate
	svc        *reconcile.Service
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Log.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{cfg: cfg, logger: newLogger(cfg)}

	a.facilities, err = config.LoadFacilitiesConfig(cfg.FacilitiesPath)
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("facilities", a.facilities.String()).Msg("Facilities loaded")

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a.db, err = store.Open(cfg.Database.Path, &a.logger)
	if err != nil {
		return nil, err
	}
	if err := a.db.SyncFacilities(ctx, a.facilities.ModelFacilities()); err != nil {
		a.Close()
		return nil, fmt.Errorf("sync facilities: %w", err)
	}

	var locker reconcile.Locker = lock.NewLocalLocker(lockWait)
	if cfg.Redis.Address != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewFailoverLocker(lock.NewRedisLocker(a.rdb, lockWait), lock.NewLocalLocker(lockWait), &a.logger)
	}

	a.bus = events.NewEventBus()
	a.bus.OnError(func(e events.Event, err error) {
		a.logger.Warn().Err(err).Str("event", e.Type).Msg("Event handler failed")
	})
	a.gate = slots.NewGate(a.facilities.Windows(), a.facilities.DefaultWindow())

	a.svc = reconcile.NewService(a.db, reconcile.Options{
		Locker:   locker,
		Gate:     a.gate,
		Bus:      a.bus,
		Location: loc,
		LockTTL:  cfg.LockTTL(),
	}, &a.logger)
	return a, nil
}

// applyFacilities pushes a (re)loaded facilities file into the store and gate.
func (a *app) applyFacilities(ctx context.Context, fc *config.FacilitiesConfig) error {
	if err := a.db.SyncFacilities(ctx, fc.ModelFacilities()); err != nil {
		return fmt.Errorf("sync facilities: %w", err)
	}
	a.gate.Replace(fc.Windows())
	for _, ng := range fc.NgDates() {
		if err := a.svc.SetNgDate(ctx, ng); err != nil {
			return fmt.Errorf("blackout %s: %w", ng.Date, err)
		}
	}
	a.mu.Lock()
	a.facilities = fc
	a.mu.Unlock()
	return nil
}

// newAudit builds the report service. With telegram set and a bot token
// configured, reports go to the chats; otherwise they land in the export dir.
func (a *app) newAudit(telegram bool) *audit.Service {
	var notifier audit.Notifier
	if telegram && a.cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatIDs, &a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Telegram unavailable, reports go to the export directory")
		} else {
			notifier = tg
		}
	}
	loc, _ := a.cfg.Location()
	return audit.NewService(audit.Config{
		ExportDir:      a.cfg.Audit.ExportDir,
		DailyTasksHour: a.cfg.Audit.DailyTasksHour,
		Location:       loc,
	}, a.svc, nil, notifier, &a.logger)
}

// Facilities returns the current facilities file.
func (a *app) Facilities() *config.FacilitiesConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.facilities
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
