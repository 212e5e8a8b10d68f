package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Name: "test", Level: "debug", Format: "json", Output: &buf})

	l.Info("plugin loaded", "plugin", "radio")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plugin loaded", entry["@message"])
	assert.Equal(t, "radio", entry["plugin"])
	assert.Equal(t, "test", entry["@module"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Output: &buf})

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestSetDefault(t *testing.T) {
	previous := Get()
	t.Cleanup(func() { SetDefault(previous) })

	var buf bytes.Buffer
	SetDefault(hclog.New(&hclog.LoggerOptions{Name: "host", Output: &buf, Level: hclog.Debug}))

	Named("catalog").Debug("state changed", "state", "READY")
	assert.True(t, strings.Contains(buf.String(), "host.catalog"))
	assert.Contains(t, buf.String(), "state=READY")
}
