package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"":        slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.EqualError(t, err, "unknown log level: verbose")
}

func TestSetupToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ports.log")
	require.NoError(t, Setup(Config{Level: "debug", Format: "json", Output: path}))
	t.Cleanup(func() {
		Close()
		Setup(DefaultConfig())
	})

	WithComponent("cache").Debug("miss", "pid", 77)
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"component":"cache"`), line)
	assert.True(t, strings.Contains(line, `"pid":77`), line)
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	assert.EqualError(t, Setup(Config{Format: "xml", Output: "discard"}), "unknown log format: xml")
}

func TestContextLogger(t *testing.T) {
	assert.Same(t, Default(), FromContext(context.Background()))

	l := Discard()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}
