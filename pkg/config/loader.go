package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

type options struct {
	files  []string
	prefix string
}

// Option tunes a single Load call.
type Option func(*options)

// WithEnvFiles loads the given dotenv files before parsing. Variables already
// present in the process environment win over file values. Missing files are an error.
func WithEnvFiles(files ...string) Option {
	return func(o *options) { o.files = append(o.files, files...) }
}

// WithPrefix prepends prefix to every env tag of the target struct.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// Load parses environment variables into v based on its `env` struct tags.
//
// The default .env in the working directory is loaded once per process and is
// optional. Nested structs are parsed as well, so an application config can
// embed the per-package configs:
//
//	type App struct {
//		PG    pg.Config
//		Redis redis.Config
//		Env   string `env:"APP_ENV" envDefault:"development"`
//	}
//
//	var cfg App
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	defaultEnvLoaded.Do(func() {
		// .env is optional
		_ = godotenv.Load()
	})

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	for _, f := range o.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Join(ErrEnvFileNotFound, err)
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Join(ErrParsingConfig, err)
		}
	}

	if err := env.ParseWithOptions(v, env.Options{Prefix: o.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	return nil
}

// MustLoad works like Load but panics on failure. Intended for main.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
