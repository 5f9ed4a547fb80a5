package main

import (
	"strings"
	"testing"

	"github.com/srg/bikemon/internal/testutils"
	"github.com/srg/bikemon/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShow(t *testing.T) {
	stdout, _, err := runRoot(nil, "config", "show", "--config", testConfigPath)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "# "+testConfigPath+"\n"), "output MUST start with the source path")
	assert.Contains(t, stdout, "C0:FF:EE:00:00:01")
	assert.Contains(t, stdout, "scan_timeout: 10s")
	assert.Contains(t, stdout, "assist_pattern: [48, 4]")
	assert.Contains(t, stdout, "2: TOUR+")
}

func TestConfigShow_BackendOverride(t *testing.T) {
	stdout, _, err := runRoot(nil, "config", "show", "--config", testConfigPath, "--backend", "tinygo")
	require.NoError(t, err)

	assert.Contains(t, stdout, "backend: tinygo")
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		stdout, _, err := runRoot(nil, "config", "validate", "--config", testConfigPath)
		require.NoError(t, err)

		testutils.NewTextAsserter(t).Assert(stdout, testConfigPath+": configuration is valid")
	})

	t.Run("invalid file lists every problem", func(t *testing.T) {
		// GOAL: Verify validation reports all problems at once, in a stable order
		//
		// TEST SCENARIO: invalid.yaml → six reasons, rendered as a bullet list for the user

		_, _, err := runRoot(nil, "config", "validate", "--config", invalidConfigPath)

		var cfgErr *config.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		reasons := []string{
			`log_level must be debug, info, warn, or error, got "chatty"`,
			`bluetooth.backend must be one of go-ble, tinygo, got "serial"`,
			"bluetooth.status_service_uuid is required",
			"bluetooth.status_characteristic_uuid is required",
			"parsing.assist_pattern is required",
			"parsing.battery_pattern[1]: 300 is not a byte value",
		}
		assert.Equal(t, reasons, cfgErr.Reasons)

		expected := "invalid configuration:\n  - " + strings.Join(reasons, "\n  - ")
		testutils.NewTextAsserter(t).Assert(FormatUserError(err), expected)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := runRoot(nil, "config", "validate", "--config", "testdata/absent.yaml")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading config file")
	})
}

func TestConfigPath(t *testing.T) {
	stdout, _, err := runRoot(nil, "config", "path")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultConfigPath()+"\n", stdout)
}
