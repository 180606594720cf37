package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	lg := NewWriter(buf, LInfo)
	lg.SetFlags(0)

	lg.Errorf("boom %d", 1)
	lg.Infof("hello")
	lg.Debugf("hidden")

	out := buf.String()
	assert.Contains(t, out, "error: boom 1")
	assert.Contains(t, out, "hello")
	assert.NotContains(t, out, "hidden")

	lg.SetLevel(LDebug)
	lg.Debugf("visible")
	assert.Contains(t, buf.String(), "debug: visible")
}

func TestNilLogIsSafe(t *testing.T) {
	t.Parallel()

	var lg *Log
	lg.SetLevel(LDebug)
	lg.SetFlags(0)
	lg.Errorf("nope")
	lg.Infof("nope")
	lg.Debugf("nope")
	assert.False(t, lg.Enabled(LError))
}

func TestEnabled(t *testing.T) {
	t.Parallel()

	lg := NewWriter(&bytes.Buffer{}, LInfo)
	assert.True(t, lg.Enabled(LError))
	assert.True(t, lg.Enabled(LInfo))
	assert.False(t, lg.Enabled(LDebug))
}

func TestPercentInMessage(t *testing.T) {
	t.Parallel()

	lg := NewTest(t, LDebug)
	// must not explode or mangle through the t.Logf bridge
	lg.Infof("raw=%s", "100%")
}

func TestDiscardWriter(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	lg := NewWriter(buf, LDebug)
	lg.SetFlags(0)
	lg.Infof("line")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
