// Package convert maps raw integer sensor readings to the SI units SignalK
// expects. Defaults are fixed per parameter type; a config may override a
// type with a formula evaluated by the restricted grammar in eval.go.
package convert

import (
	"github.com/marine-iot/vvmgate/logx"
	"github.com/marine-iot/vvmgate/vvm"
)

func RPMToHertz(v float64) float64          { return v / 60 }
func CelsiusToKelvin(v float64) float64     { return v + 273.15 }
func MinutesToSeconds(v float64) float64    { return v * 60 }
func MillivoltsToVolts(v float64) float64   { return v / 1000 }
func PressureToPascals(v float64) float64   { return v / 1.25 }
func ClPerHourToM3PerSec(v float64) float64 { return v * 2.77778e-9 }

// Default applies the built-in conversion for a parameter type.
// Unrecognized types pass through unchanged.
func Default(pt vvm.ParameterType, v float64) float64 {
	switch pt {
	case vvm.TypeEngineRPM:
		return RPMToHertz(v)
	case vvm.TypeCoolantTemperature:
		return CelsiusToKelvin(v)
	case vvm.TypeBatteryVoltage:
		return MillivoltsToVolts(v)
	case vvm.TypeEngineRuntime:
		return MinutesToSeconds(v)
	case vvm.TypeCurrentFuelFlow:
		return ClPerHourToM3PerSec(v)
	case vvm.TypeOilPressure:
		return PressureToPascals(v)
	}
	return v
}

// Engine resolves per-type conversions, with config formula overrides taking
// precedence over the default table.
type Engine struct {
	overrides map[vvm.ParameterType]*Formula
	log       *logx.Log
}

// NewEngine compiles the override formulas. Unknown parameter type names and
// formulas that fail to parse are logged and ignored; they never abort
// configuration loading.
func NewEngine(overrides map[string]string, log *logx.Log) *Engine {
	e := &Engine{
		overrides: make(map[vvm.ParameterType]*Formula, len(overrides)),
		log:       log,
	}
	for name, src := range overrides {
		pt, err := vvm.ParseParameterType(name)
		if err != nil {
			log.Errorf("conversion override ignored: %v", err)
			continue
		}
		f, err := Parse(src)
		if err != nil {
			log.Errorf("conversion override %s formula=%q ignored: %v", name, src, err)
			continue
		}
		log.Debugf("conversion override %s formula=%q", name, src)
		e.overrides[pt] = f
	}
	return e
}

// Convert applies the override for pt when one is configured, otherwise the
// default table. Any evaluation failure returns v unchanged.
func (e *Engine) Convert(pt vvm.ParameterType, v float64) float64 {
	if f, ok := e.overrides[pt]; ok {
		out, err := f.Eval(v)
		if err != nil {
			e.log.Debugf("conversion %s formula failed value=%v: %v", pt, v, err)
			return v
		}
		return out
	}
	return Default(pt, v)
}

// EvalFormula evaluates src with the given value, returning value unchanged
// on any parse or evaluation failure.
func EvalFormula(src string, value float64) float64 {
	f, err := Parse(src)
	if err != nil {
		return value
	}
	out, err := f.Eval(value)
	if err != nil {
		return value
	}
	return out
}
