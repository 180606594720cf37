package health

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marine-iot/vvmgate/logx"
)

func TestStateCheck(t *testing.T) {
	t.Parallel()

	s := NewState()
	ok, _, _ := s.Check()
	assert.True(t, ok, "no components registered yet")

	s.SetUp("vvm")
	s.SetUp("signalk")
	ok, _, _ = s.Check()
	assert.True(t, ok)

	s.SetDown("vvm", "device disconnected")
	ok, component, message := s.Check()
	assert.False(t, ok)
	assert.Equal(t, "vvm", component)
	assert.Equal(t, "device disconnected", message)

	s.SetUp("vvm")
	ok, _, _ = s.Check()
	assert.True(t, ok)
}

func TestHeartbeatFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "health")
	state := NewState()
	state.SetUp("vvm")
	h := NewHeartbeat(state, path, time.Hour, logx.NewTest(t, logx.LDebug))

	require.NoError(t, h.WriteOnce())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "OK "), string(b))

	state.SetDown("signalk", "connection refused")
	require.NoError(t, h.WriteOnce())
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "BAD signalk connection refused "), string(b))
}

func TestHeartbeatLoop(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "health")
	state := NewState()
	h := NewHeartbeat(state, path, 10*time.Millisecond, logx.NewTest(t, logx.LDebug))
	h.Start()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Close()

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
