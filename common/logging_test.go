package common

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{
		JSON:    true,
		Service: "setup-mpc-server",
		Version: "v1.2.3",
		Output:  &buf,
	})

	log.Debug("hidden")
	log.Info("visible", "position", 3)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "visible", line["msg"])
	assert.Equal(t, "setup-mpc-server", line["service"])
	assert.Equal(t, "v1.2.3", line["version"])
	assert.EqualValues(t, 3, line["position"])
}

func TestSetupLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{Debug: true, Output: &buf})

	log.Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}
