package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_LevelParsing(t *testing.T) {
	lg, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.True(t, lg.Core().Enabled(zapcore.DebugLevel))

	lg, err = New(Config{Level: "warn"})
	require.NoError(t, err)
	require.False(t, lg.Core().Enabled(zapcore.InfoLevel))
	require.True(t, lg.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	lg, err := New(Config{Level: "shouting"})
	require.NoError(t, err)
	require.False(t, lg.Core().Enabled(zapcore.DebugLevel))
	require.True(t, lg.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "novabuf.log")

	lg, err := New(Config{Level: "info", Format: "json", OutputFile: path})
	require.NoError(t, err)

	lg.Info("hello")
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"hello"`)
	require.Contains(t, string(data), `"novabuf"`)
}
