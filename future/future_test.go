package future

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureCompleteOnce(t *testing.T) {
	t.Parallel()

	f := New()
	require.True(t, f.Complete(42))
	assert.False(t, f.Complete(43))
	assert.False(t, f.Cancel(nil))
	assert.Equal(t, 42, f.Result())

	select {
	case <-f.Completed():
	default:
		t.Fatal("completed channel must be closed")
	}
}

func TestFutureCancel(t *testing.T) {
	t.Parallel()

	f := New()
	require.True(t, f.Cancel("stop"))
	assert.False(t, f.Complete(1))
	assert.Equal(t, "stop", f.Result())

	select {
	case <-f.Cancelled():
	case <-time.After(time.Second):
		t.Fatal("cancelled channel must be closed")
	}
}
