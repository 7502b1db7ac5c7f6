package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrickRunner/exchangerate-bot/internal/config"
	"github.com/BrickRunner/exchangerate-bot/internal/rates"
	"github.com/BrickRunner/exchangerate-bot/internal/scheduler"
	"github.com/BrickRunner/exchangerate-bot/internal/store"
	"github.com/BrickRunner/exchangerate-bot/internal/telegram"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg      config.Config
	log      *zap.Logger
	bot      *tgbotapi.BotAPI
	registry *prometheus.Registry
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = false

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &App{cfg: cfg, log: log, bot: bot, registry: reg}, nil
}

// pinger reports whether the settings store is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

func newMux(reg *prometheus.Registry, db pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// Run starts the scheduler, the update loop and the HTTP server and blocks
// until a signal arrives or one of them fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("starting exchangerate-bot",
		zap.String("bot", a.bot.Self.UserName),
		zap.String("http", a.cfg.HTTPAddr),
		zap.Duration("poll_interval", a.cfg.PollInterval()),
	)

	defaults, err := a.cfg.Defaults()
	if err != nil {
		return err
	}

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath, defaults)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			a.log.Warn("close sqlite failed", zap.Error(err))
		}
	}()
	a.log.Info("sqlite ready", zap.String("path", a.cfg.DBPath))

	src := rates.New(rates.Config{
		DailyURL: a.cfg.RatesBaseURL,
		CBRURL:   a.cfg.CBRBaseURL,
		Timeout:  a.cfg.RatesTimeout,
	})
	defer src.Close()

	router := telegram.NewRouter(a.bot, a.log, repo, src, telegram.Config{
		SendPerSec: a.cfg.SendRatePerSec,
		Defaults:   defaults,
	})
	sched := scheduler.New(repo, src, router, a.log, scheduler.NewMetrics(a.registry), scheduler.Config{
		Interval:          a.cfg.PollInterval(),
		Backoff:           a.cfg.Backoff(),
		FetchTimeout:      a.cfg.RatesTimeout,
		Defaults:          defaults,
		MarkSentOnFailure: a.cfg.MarkSentOnDeliveryFailure,
	})

	srv := &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      newMux(a.registry, repo),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error { return a.serveHTTP(gctx, srv) })
	g.Go(func() error { return a.pollUpdates(gctx, router) })

	err = g.Wait()
	a.log.Info("shutdown complete")
	return err
}

func (a *App) serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	return nil
}

func (a *App) pollUpdates(ctx context.Context, router *telegram.Router) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.bot.StopReceivingUpdates()
			return nil
		case upd, ok := <-updCh:
			if !ok {
				return nil
			}
			router.HandleUpdate(ctx, upd)
		}
	}
}
