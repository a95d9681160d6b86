package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevels(t *testing.T) {
	for _, tc := range []struct {
		name          string
		log           func(Logger, string)
		expectedLevel zapcore.Level
	}{
		{"Debug", func(l Logger, m string) { l.Debug(m) }, zapcore.DebugLevel},
		{"Info", func(l Logger, m string) { l.Info(m) }, zapcore.InfoLevel},
		{"Warn", func(l Logger, m string) { l.Warn(m) }, zapcore.WarnLevel},
		{"Error", func(l Logger, m string) { l.Error(m) }, zapcore.ErrorLevel},
	} {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			tc.log(&ZapLogger{zap.New(core)}, "ABC")

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			require.Equal(t, "ABC", entry.Message)
			require.Equal(t, tc.expectedLevel, entry.Level)
		})
	}
}

func TestWithAddsFieldsWithoutMutatingParent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	parent := &ZapLogger{zap.New(core)}
	child := parent.With(zap.String("pipeline", "Site"))

	child.Info("started")
	parent.Info("plain")

	require.Equal(t, 2, logs.Len())
	require.Equal(t, map[string]interface{}{"pipeline": "Site"}, logs.All()[0].ContextMap())
	require.Empty(t, logs.All()[1].ContextMap())
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("json", "none")
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = NewLogger("json", "loud")
	require.ErrorContains(t, err, "unknown log level")

	_, err = NewLogger("xml", "info")
	require.ErrorContains(t, err, "unknown log format")

	for _, format := range []string{"text", "json"} {
		l, err := NewLogger(format, "debug")
		require.NoError(t, err)
		require.NotNil(t, l)
	}

	require.Panics(t, func() { MustNewLogger("json", "loud") })
}
