package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"monitord/internal/alerts"
	"monitord/internal/cache"
	"monitord/internal/collector"
	"monitord/internal/config"
	"monitord/internal/db"
	"monitord/internal/hub"
	"monitord/internal/jobs"
	"monitord/internal/maintenance"
	"monitord/internal/notifier"
	"monitord/internal/reports"
	"monitord/internal/web"
)

// Job kinds for the recurring cycles.
const (
	kindCollect  = "metrics-collection"
	kindEvaluate = "alert-threshold"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db    *db.Repository
	cache *cache.Cache
	hub   *hub.Hub
	sched *jobs.Scheduler

	collector *collector.Service
	evaluator *alerts.Evaluator
	reports   *reports.Service
	maint     *maintenance.Service

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		return nil, err
	}
	if cfg.SeedDemoServers {
		if err := db.SeedDemoServers(sqldb); err != nil {
			return nil, err
		}
	}
	repo := db.NewRepository(sqldb)

	var redis *cache.Cache
	if cfg.RedisAddr != "" {
		redis, err = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// Dedup falls back to the database alone.
			logger.Warn("redis unavailable, continuing without dedup cache", "err", err)
			redis = nil
		}
	}

	h := hub.New(logger.With("module", "hub"))
	email := notifier.NewEmail(cfg.SendGridKey, cfg.AlertEmail, logger.With("module", "notifier"))
	sched := jobs.NewScheduler(repo, cfg.Workers, logger.With("module", "jobs"))

	store, err := reports.NewDiskStore(cfg.ReportDir)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:       cfg,
		log:       logger,
		db:        repo,
		cache:     redis,
		hub:       h,
		sched:     sched,
		collector: collector.NewService(repo, collector.NewSimulatedSource(time.Now().UnixNano()), h, logger.With("module", "collector")),
		evaluator: alerts.NewEvaluator(repo, h, redis, cfg.DedupWindow, logger.With("module", "alerts")),
		reports:   reports.NewService(repo, store, h, email, sched, cfg.ReportRetention, logger.With("module", "reports")),
		maint:     maintenance.NewService(repo, h, email, sched, logger.With("module", "maintenance")),
	}

	sched.Register(kindCollect, func(ctx context.Context, _ jobs.Invocation) error {
		return app.collector.RunCycle(ctx)
	})
	sched.Register(kindEvaluate, func(ctx context.Context, _ jobs.Invocation) error {
		return app.evaluator.RunCycle(ctx)
	})
	app.reports.Register()
	app.maint.Register()

	sched.ScheduleRecurring(kindCollect, cfg.CollectInterval)
	sched.ScheduleRecurring(kindEvaluate, cfg.EvaluateInterval)

	w := web.NewServer(repo, h, app.reports, app.maint, logger.With("module", "web"))
	app.httpSrv = &http.Server{Addr: cfg.Addr, Handler: w.Routes()}
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.sched.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.httpSrv.Shutdown(shutdownCtx)
		_ = a.cache.Close()
		return a.db.DB().Close()
	})

	return g.Wait()
}
