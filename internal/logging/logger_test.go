package logging

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			logger, err := New(Config{Level: level})
			require.NoError(t, err, "level %s", level)
			assert.NotNil(t, logger)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Config{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("development config", func(t *testing.T) {
		logger, err := New(DevelopmentConfig())
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})
}

func TestNewAttachesStdoutSink(t *testing.T) {
	// A config that names no output paths must still log somewhere.
	// Zap resolves the "stdout" sink at build time, so swapping
	// os.Stdout for a pipe around New captures the logger's output.
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	logger, newErr := New(Config{Level: "info"})
	os.Stdout = orig
	require.NoError(t, newErr)

	logger.Info("sink attached")
	_ = logger.Sync()
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "sink attached")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	logger.Info("default logger works")
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	require.NotNil(t, logger)
	logger.Error("discarded")
}
