package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestContextWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")
	ctx := ContextWithLogger(context.Background(), logger)

	FromContext(ctx).Debug("hello", "slot", "s1")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "slot=s1")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
