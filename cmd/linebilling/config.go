package main

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/linebilling/pkg/config"
	"github.com/dmitrymomot/linebilling/pkg/httpserver"
	"github.com/dmitrymomot/linebilling/pkg/lineapi"
	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/pkg/pg"
	"github.com/dmitrymomot/linebilling/pkg/redis"
	"github.com/dmitrymomot/linebilling/pkg/requestid"
	"github.com/dmitrymomot/linebilling/svc/linebot"
	"github.com/dmitrymomot/linebilling/svc/payment"
	"github.com/dmitrymomot/linebilling/svc/reconcile"
)

type appConfig struct {
	Env          string        `env:"APP_ENV" envDefault:"development"`
	ServiceName  string        `env:"APP_SERVICE_NAME" envDefault:"linebilling"`
	LandingURL   string        `env:"APP_LP_URL" envDefault:"https://lp-production-9e2c.up.railway.app"`
	ReadyTimeout time.Duration `env:"APP_READY_TIMEOUT" envDefault:"3s"`
}

type migrateConfig struct {
	App appConfig
	PG  pg.Config
}

type serveConfig struct {
	App     appConfig
	HTTP    httpserver.Config
	PG      pg.Config
	Redis   redis.Config
	Stripe  payment.Config
	Billing reconcile.Config
	LINE    lineapi.Config
	Bot     linebot.Config
}

func load[T any](envFile string) (*T, error) {
	var cfg T
	var opts []config.Option
	if envFile != "" {
		opts = append(opts, config.WithEnvFiles(envFile))
	}
	if err := config.Load(&cfg, opts...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger(app appConfig) *slog.Logger {
	l := logger.New(
		logger.WithEnvironment(app.Env, app.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(l)
	return l
}
