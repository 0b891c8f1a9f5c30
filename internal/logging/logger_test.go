package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestWithComponentTagsOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	scoped := logger.WithComponent("scanner")
	scoped.Info().Msg("indexed")

	assert.Contains(t, buf.String(), `"component":"scanner"`)
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	require.NoError(t, logger.SetLogLevel(ErrorLevel))
	logger.Info("quiet now")
	assert.Empty(t, strings.TrimSpace(buf.String()))

	assert.Error(t, logger.SetLogLevel("nonsense"))
}
