package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMustHex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x28, 0x00, 0x03, 0x01}, MustHex("28000301"))
	assert.Panics(t, func() { MustHex("zz") })
}

func TestIntSecondDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, IntSecondDefault(0, 5*time.Second))
	assert.Equal(t, 7*time.Second, IntSecondDefault(7, 5*time.Second))
}
