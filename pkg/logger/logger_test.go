package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")

		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("static attributes", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "test")))
		log.Info("msg")

		assert.Equal(t, "test", decode(t, buf)["svc"])
	})

	t.Run("context value extractor", func(t *testing.T) {
		t.Parallel()
		type key struct{}
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithContextValue("trace", key{}))

		ctx := context.WithValue(context.Background(), key{}, "abc")
		log.InfoContext(ctx, "msg")

		assert.Equal(t, "abc", decode(t, buf)["trace"])
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	t.Run("production is json at info", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("prod", "linebilling"), logger.WithOutput(buf))
		log.Debug("hidden")
		assert.Zero(t, buf.Len())

		log.Info("shown")
		entry := decode(t, buf)
		assert.Equal(t, "linebilling", entry["service"])
		assert.Equal(t, "production", entry["env"])
	})

	t.Run("unknown falls back to development text", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("local", "svc"), logger.WithOutput(buf))
		log.Debug("msg")
		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "env=development")
	})
}

func TestEnvironmentExtractor(t *testing.T) {
	t.Parallel()

	ex := logger.EnvironmentExtractor()
	_, ok := ex(context.Background())
	assert.False(t, ok)

	attr, ok := ex(logger.WithEnvironmentContext(context.Background(), logger.Staging))
	require.True(t, ok)
	assert.Equal(t, "staging", attr.Value.String())
}

func TestAttrHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.Equal(t, "error", logger.Error(errors.New("x")).Key)

	errs := logger.Errors(errors.New("a"), nil, errors.New("b"))
	require.Equal(t, slog.KindGroup, errs.Value.Kind())
	assert.Len(t, errs.Value.Group(), 2)
	assert.True(t, logger.Errors(nil).Equal(slog.Attr{}))

	assert.True(t, logger.ChatUserID("").Equal(slog.Attr{}))
	assert.Equal(t, "U123", logger.ChatUserID("U123").Value.String())
	assert.True(t, logger.CompanyID(nil).Equal(slog.Attr{}))
	assert.Equal(t, "add", logger.Operation("add").Value.String())
}
