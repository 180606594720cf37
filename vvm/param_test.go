package vvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterBitPacking(t *testing.T) {
	t.Parallel()

	p := &EngineParameter{ID: 0x0208, NotificationHeader: 0xb500}
	assert.Equal(t, uint8(2), p.EngineID())
	assert.Equal(t, TypeOilPressure, p.Type())
	assert.True(t, p.Enabled())

	disabled := &EngineParameter{ID: 0x0103}
	assert.Equal(t, uint8(1), disabled.EngineID())
	assert.Equal(t, TypeUnknown3, disabled.Type())
	assert.False(t, disabled.Enabled())
}

func TestParameterTypeKnown(t *testing.T) {
	t.Parallel()

	known := []ParameterType{
		TypeEngineRPM, TypeCoolantTemperature, TypeBatteryVoltage,
		TypeEngineRuntime, TypeCurrentFuelFlow, TypeOilPressure,
	}
	for _, pt := range known {
		assert.True(t, pt.Known(), pt.String())
	}
	for _, pt := range []ParameterType{TypeUnknown3, TypeUnknown6, TypeUnknownF} {
		assert.False(t, pt.Known(), pt.String())
	}
}

func TestParseParameterType(t *testing.T) {
	t.Parallel()

	pt, err := ParseParameterType("ENGINE_RPM")
	require.NoError(t, err)
	assert.Equal(t, TypeEngineRPM, pt)

	pt, err = ParseParameterType("OIL_PRESSURE")
	require.NoError(t, err)
	assert.Equal(t, TypeOilPressure, pt)

	_, err = ParseParameterType("NO_SUCH_PARAMETER")
	assert.Error(t, err)
}
