// Package app assembles the routing pipeline and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fabrica/internal/config"
	"fabrica/internal/delivery"
	"fabrica/internal/event"
	"fabrica/internal/eventbus"
	"fabrica/internal/langdetect"
	"fabrica/internal/planner"
	"fabrica/internal/router"
	"fabrica/internal/routing"
	"fabrica/internal/storage"
	"fabrica/internal/translate"
	"fabrica/internal/transport/telegram"
	"fabrica/internal/webhook"
	logx "fabrica/pkg/logx"
)

const defaultPruneSchedule = "0 3 * * *"

type App struct {
	manager *config.ConfigManager
	logSvc  *logx.Service
	log     logx.Logger

	bus      eventbus.Bus
	store    storage.Store
	table    *routing.Table
	planner  *planner.Planner
	engine   *delivery.Engine
	router   *router.Router
	web      *webhook.Server
	listener *telegram.Listener
	cron     *cron.Cron

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	manager := config.NewConfigManager(cfgPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	manager.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{manager: manager, logSvc: logSvc, log: log, bus: eventbus.New()}
	if err := a.build(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	storeCfg, err := storageConfig(cfg.Storage)
	if err != nil {
		return err
	}
	store, err := storage.Open(storeCfg, a.log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	a.table = routing.NewTable(routing.Config{
		DefaultLanguage:  cfg.Routing.DefaultLanguage,
		ChannelLanguages: cfg.Routing.ChannelLanguages,
	}, store, a.log)

	trCfg, err := translationConfig(cfg.Translation)
	if err != nil {
		return err
	}
	translator := translate.New(trCfg, a.log)

	a.planner = planner.New(planner.Config{
		TransparentDetail: cfg.Planner.TransparentDetail,
		SimilarityGuard:   cfg.Planner.SimilarityGuard,
	}, translator, a.log)

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, a.log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	delCfg, err := deliveryConfig(cfg.Delivery)
	if err != nil {
		return err
	}
	a.engine = delivery.NewEngine(delCfg, adapter, store, a.bus, a.log)

	classifier := event.NewClassifier(event.Config{
		GitHubSecret: cfg.Webhooks.GitHubSecret,
		PlaneSecret:  cfg.Webhooks.PlaneSecret,
	}, langdetect.Code, a.log)

	handleTimeout, err := config.ParseDurationField("router.handle_timeout", cfg.Router.HandleTimeout)
	if err != nil {
		return err
	}
	a.router = router.New(router.Config{HandleTimeout: handleTimeout},
		classifier, a.table, a.planner, a.engine, a.bus, a.log)

	webCfg, err := webhookConfig(cfg.Webhooks)
	if err != nil {
		return err
	}
	a.web = webhook.NewServer(webCfg, a.router, a.log)

	a.listener = telegram.NewListener(adapter, func(ctx context.Context, p event.ChatPayload) {
		a.router.HandleChat(ctx, p)
	}, a.table, a.log)

	schedule := cfg.Delivery.DedupPruneSchedule
	if schedule == "" {
		schedule = defaultPruneSchedule
	}
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(schedule, a.pruneDedup); err != nil {
		return fmt.Errorf("delivery.dedup_prune_schedule: %w", err)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.web.Start(ctx); err != nil {
		return err
	}
	if err := a.listener.Start(ctx); err != nil {
		return err
	}
	a.cron.Start()

	a.wg.Add(2)
	go a.watchConfig(ctx)
	go a.reloadLoop(ctx)

	a.log.Info("fabrica started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	if err := a.listener.Stop(ctx); err != nil {
		a.log.Warn("telegram stop", logx.Err(err))
	}
	if err := a.web.Stop(ctx); err != nil {
		a.log.Warn("webhook stop", logx.Err(err))
	}

	a.wg.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("fabrica stopped")
	_ = a.logSvc.Close()
	return nil
}

func (a *App) pruneDedup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.store.PruneDedup(ctx); err != nil {
		a.log.Warn("dedup prune failed", logx.Err(err))
		return
	}
	a.log.Debug("dedup ledger pruned")
}

func (a *App) watchConfig(ctx context.Context) {
	defer a.wg.Done()
	if err := a.manager.Watch(ctx); err != nil {
		a.log.Warn("config watch stopped", logx.Err(err))
	}
}

// reloadLoop re-applies the hot-reloadable sections: logging, delivery gates,
// and planner knobs. Storage, telegram, and listen addresses need a restart.
func (a *App) reloadLoop(ctx context.Context) {
	defer a.wg.Done()
	ch := a.manager.Subscribe(1)
	defer a.manager.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.applyReload(cfg)
		}
	}
}

func (a *App) applyReload(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	delCfg, err := deliveryConfig(cfg.Delivery)
	if err != nil {
		a.log.Warn("reload: delivery config invalid, keeping current", logx.Err(err))
	} else {
		a.engine.Apply(delCfg)
	}

	a.planner.Apply(planner.Config{
		TransparentDetail: cfg.Planner.TransparentDetail,
		SimilarityGuard:   cfg.Planner.SimilarityGuard,
	})

	a.log.Info("configuration reloaded")
}
