package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/linebilling/pkg/httpserver"
	"github.com/dmitrymomot/linebilling/pkg/lineapi"
	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/pkg/pg"
	"github.com/dmitrymomot/linebilling/pkg/ratelimiter"
	"github.com/dmitrymomot/linebilling/pkg/redis"
	"github.com/dmitrymomot/linebilling/pkg/requestid"
	"github.com/dmitrymomot/linebilling/svc/conversation"
	"github.com/dmitrymomot/linebilling/svc/entitlement"
	"github.com/dmitrymomot/linebilling/svc/linebot"
	"github.com/dmitrymomot/linebilling/svc/payment"
	"github.com/dmitrymomot/linebilling/svc/reconcile"
	"github.com/dmitrymomot/linebilling/svc/responder"
	"github.com/dmitrymomot/linebilling/svc/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the LINE webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := load[serveConfig](envFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *serveConfig) error {
	log := newLogger(cfg.App)
	ctx = logger.WithEnvironmentContext(ctx, logger.ParseEnvironment(cfg.App.Env))

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st := store.New(pool)
	gate := entitlement.New(st, entitlement.WithLogger(log))
	engine := reconcile.New(cfg.Billing, st,
		payment.NewClient(cfg.Stripe, payment.WithLogger(log)),
		reconcile.WithLogger(log),
		reconcile.WithMetrics(reconcile.NewMetrics(reg)),
	)
	conv := conversation.New(st, gate, engine, conversation.WithLogger(log))

	resp, err := responder.New(ctx, responder.WithLandingURL(cfg.App.LandingURL), responder.WithLogger(log))
	if err != nil {
		return err
	}
	line, err := lineapi.New(cfg.LINE, lineapi.WithLogger(log))
	if err != nil {
		return err
	}
	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb, cfg.Bot.RatePrefix), cfg.Bot.RateLimit())
	if err != nil {
		return err
	}
	bot := linebot.New(cfg.Bot, conv, resp, line,
		linebot.WithLogger(log),
		linebot.WithMetrics(linebot.NewMetrics(reg)),
		linebot.WithDeduplicator(linebot.NewRedisDeduplicator(rdb, cfg.Bot)),
		linebot.WithRateLimiter(limiter),
	)

	r := chi.NewRouter()
	r.Use(requestid.Middleware, middleware.Recoverer)
	r.Get("/health", httpserver.LivenessHandler())
	r.Get("/ready", httpserver.ReadinessHandler(log, cfg.App.ReadyTimeout,
		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)},
	))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	bot.Routes(r)

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, r)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.InfoContext(gctx, "shutting down")
		return nil
	})
	return g.Wait()
}
