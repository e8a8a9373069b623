package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	l1 := Ctx(ctx)
	require.NotNil(t, l1, "Ctx returned nil instead of default logger")
	assert.Equal(t, defaultLogger, l1, "Ctx should return defaultLogger")

	customLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	require.NotEqual(t, defaultLogger, customLogger, "Failed to create a distinct custom logger for testing")

	ctxWithLogger := With(ctx, customLogger)
	l2 := Ctx(ctxWithLogger)
	require.NotNil(t, l2, "Ctx returned nil, expected custom logger")
	assert.Equal(t, customLogger, l2, "Ctx should return customLogger")
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	ctx := With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = WithAttrs(ctx, slog.String("gatewayID", "GW1"), slog.Int("snno", 4))

	Ctx(ctx).InfoContext(ctx, "hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "GW1", line["gatewayID"])
	assert.EqualValues(t, 4, line["snno"])
}

func TestSetDefaultLogLevel(t *testing.T) {
	var buf bytes.Buffer
	orig := defaultLogger
	defer func() {
		defaultLogger = orig
		slog.SetDefault(orig)
		SetDefaultLogLevel(slog.LevelInfo)
	}()

	SetDefaultOutput(&buf)
	SetDefaultLogLevel(slog.LevelWarn)

	ctx := context.Background()
	Ctx(ctx).InfoContext(ctx, "dropped")
	assert.Empty(t, buf.String(), "info should be filtered at warn level")

	Ctx(ctx).WarnContext(ctx, "kept")
	assert.Contains(t, buf.String(), "kept")
}
