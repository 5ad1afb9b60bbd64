package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithAgentID(ctx, "agent-1")

	log.Error(ctx, "boom", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "req-123", entry["request_id"])
	require.Equal(t, "agent-1", entry["agent_id"])
	require.Equal(t, "boom", entry["error"])
	require.Contains(t, entry, "stack")
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	require.Contains(t, buf.String(), `"stack"`)

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	quiet.Warn(context.Background(), "warny")
	require.NotContains(t, buf.String(), `"stack"`)
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("warn"), Output: buf})
	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	require.Zero(t, buf.Len())
}

func TestParseLevelDefaults(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestNilLoggerDiscards(t *testing.T) {
	var log *Logger
	ctx := log.WithAgentID(context.Background(), "agent-1")
	require.NotNil(t, ctx)
	require.NotPanics(t, func() {
		log.Info(ctx, "quiet")
		log.Warn(ctx, "quiet")
		log.Error(ctx, "quiet", errors.New("ignored"))
	})
}

func TestLoggerScopedFieldsStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "dispatch", Format: "json", Output: buf})

	ctx := log.WithOrderID(context.Background(), "PD-1001")
	ctx = log.WithFields(ctx, map[string]any{"agent_id": "agent-7", "score": 82})
	log.Info(ctx, "order assigned")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "dispatch", entry["service"])
	require.Equal(t, "PD-1001", entry["order_id"])
	require.Equal(t, "agent-7", entry["agent_id"])
	require.EqualValues(t, 82, entry["score"])
	require.Equal(t, "order assigned", entry["message"])
}
