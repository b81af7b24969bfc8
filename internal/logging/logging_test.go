// ABOUTME: Logging setup tests
// ABOUTME: Verifies level, format and file teeing
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
)

func TestConfigureJSONToConsole(t *testing.T) {
	logger := logrus.New()
	var console bytes.Buffer

	closer, err := Configure(logger, &console, Options{Level: "warn", Format: "json"})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.WithField("component", "mixer").Warn("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(console.Bytes(), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "mixer", entry["component"])
	assert.Equal(t, "warning", entry["level"])
}

func TestConfigureTeesToFile(t *testing.T) {
	logger := logrus.New()
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "meshtalk.log")

	closer, err := Configure(logger, &console, Options{Level: "debug", File: path})
	require.NoError(t, err)

	logger.Debug("packet buffered")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "packet buffered")
	assert.Contains(t, console.String(), "packet buffered")
}

func TestConfigureErrors(t *testing.T) {
	logger := logrus.New()

	_, err := Configure(logger, &bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)

	_, err = Configure(logger, &bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)

	_, err = Configure(logger, &bytes.Buffer{}, Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.ErrorContains(t, err, "log file")
}
