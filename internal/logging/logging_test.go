package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/config"
)

func TestConfigureJSONDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logrus.New()
	configure(logger, config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.WithField("component", "test").Debug("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "debug", entry["level"])
}

func TestConfigureUnknownLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logrus.New()
	configure(logger, config.LoggingConfig{Level: "chatty", Format: "text"}, &buf)

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestOutputSelectsRotatingFile(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	file := filepath.Join(t.TempDir(), "app.log")

	assert.Same(t, &stdout, output(config.LoggingConfig{Output: "file"}, &stdout), "no file configured")

	w := output(config.LoggingConfig{Output: "file", File: file, MaxSizeMB: 1}, &stdout)
	rotating, ok := w.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, file, rotating.Filename)

	_, err := rotating.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, rotating.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}
