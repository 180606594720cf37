package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marine-iot/vvmgate/logx"
)

const sampleConfig = `
device {
  address = "aa:bb:cc:dd:ee:ff"
  streaming_timeout_sec = 60
}
signalk {
  url = "ws://localhost:3000/signalk/v1/stream"
  username = "skipper"
}
csv {
  enable = true
  file = "/var/log/vvm.csv"
  flush_interval_sec = 5
}
healthcheck {
  enable = true
  file = "/run/vvmgate.health"
}
logging {
  debug = true
}
conversion {
  ENGINE_RPM = "value / 60.0"
}
`

func writeConfig(t testing.TB, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vvmgate.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadFile(t *testing.T) {
	log := logx.NewTest(t, logx.LDebug)
	c, err := ReadFile(writeConfig(t, sampleConfig), log)
	require.NoError(t, err)

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", c.Device.Address)
	assert.Equal(t, "ws://localhost:3000/signalk/v1/stream", c.SignalK.URL)
	assert.Equal(t, "skipper", c.SignalK.Username)
	assert.True(t, c.CSV.Enable)
	assert.Equal(t, "/var/log/vvm.csv", c.CSV.File)
	assert.True(t, c.Healthcheck.Enable)
	assert.True(t, c.Logging.Debug)
	assert.Equal(t, map[string]string{"ENGINE_RPM": "value / 60.0"}, c.Conversion)

	assert.Equal(t, 60*time.Second, c.StreamingTimeout())
	assert.Equal(t, 5*time.Second, c.CSVFlushInterval())
}

func TestDefaults(t *testing.T) {
	log := logx.NewTest(t, logx.LDebug)
	c, err := ReadFile("", log)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, c.TableTimeout())
	assert.Equal(t, 5*time.Second, c.ResponseTimeout())
	assert.Equal(t, 30*time.Second, c.StreamingTimeout())
	assert.Equal(t, time.Second, c.RetryDelay())
	assert.Equal(t, 5*time.Second, c.ReconnectInterval())
	assert.Equal(t, 30*time.Second, c.HealthcheckInterval())
}

func TestWatchdogDisabled(t *testing.T) {
	log := logx.NewTest(t, logx.LDebug)
	c, err := ReadFile(writeConfig(t, `device { streaming_timeout_sec = -1 }`), log)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), c.StreamingTimeout())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VVM_DEVICE_ADDRESS", "11:22:33:44:55:66")
	t.Setenv("VVM_PASSWORD", "hunter2")
	t.Setenv("VVM_DEBUG", "1")

	log := logx.NewTest(t, logx.LDebug)
	c, err := ReadFile(writeConfig(t, sampleConfig), log)
	require.NoError(t, err)

	assert.Equal(t, "11:22:33:44:55:66", c.Device.Address)
	assert.Equal(t, "hunter2", c.SignalK.Password)
	assert.True(t, c.Logging.Debug)
	// file values without overrides survive
	assert.Equal(t, "skipper", c.SignalK.Username)
}

func TestReadFileMissing(t *testing.T) {
	log := logx.NewTest(t, logx.LDebug)
	_, err := ReadFile("/no/such/file.hcl", log)
	assert.Error(t, err)
}
