package logger

import (
	"context"
	"log/slog"
	"strings"
)

// Environment is the deployment environment the binary runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// ParseEnvironment maps common spellings ("prod", "stage", "dev") to an Environment.
// Anything unrecognised is treated as development.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

type envContextKey struct{}

// WithEnvironmentContext stores the environment in ctx.
func WithEnvironmentContext(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, envContextKey{}, env)
}

// EnvironmentFromContext returns the environment stored in ctx or an empty value.
func EnvironmentFromContext(ctx context.Context) Environment {
	if ctx == nil {
		return ""
	}
	env, _ := ctx.Value(envContextKey{}).(Environment)
	return env
}

// EnvironmentExtractor adds the "env" attribute when the environment is present in context.
func EnvironmentExtractor() ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if env := EnvironmentFromContext(ctx); env != "" {
			return slog.String("env", string(env)), true
		}
		return slog.Attr{}, false
	}
}
