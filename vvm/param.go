// Package vvm holds the Vessel View Mobile data model: the engine parameter
// table delivered by the device and the decoder for its chunked binary form.
package vvm

import (
	"fmt"
)

// ParameterType is the low byte of a parameter id. The device defines 16
// slots; the ones we can name carry engine sensors, the rest stream values
// nobody has identified yet.
type ParameterType uint8

const (
	TypeEngineRPM ParameterType = iota
	TypeCoolantTemperature
	TypeBatteryVoltage
	TypeUnknown3
	TypeEngineRuntime
	TypeCurrentFuelFlow
	TypeUnknown6
	TypeUnknown7
	TypeOilPressure
	TypeUnknown9
	TypeUnknownA
	TypeUnknownB
	TypeUnknownC
	TypeUnknownD
	TypeUnknownE
	TypeUnknownF
)

var typeNames = [16]string{
	"ENGINE_RPM",
	"COOLANT_TEMPERATURE",
	"BATTERY_VOLTAGE",
	"UNKNOWN_3",
	"ENGINE_RUNTIME",
	"CURRENT_FUEL_FLOW",
	"UNKNOWN_6",
	"UNKNOWN_7",
	"OIL_PRESSURE",
	"UNKNOWN_9",
	"UNKNOWN_A",
	"UNKNOWN_B",
	"UNKNOWN_C",
	"UNKNOWN_D",
	"UNKNOWN_E",
	"UNKNOWN_F",
}

func (pt ParameterType) String() string {
	if int(pt) < len(typeNames) {
		return typeNames[pt]
	}
	return fmt.Sprintf("ParameterType(%d)", uint8(pt))
}

// Known reports whether the type carries an identified engine sensor.
func (pt ParameterType) Known() bool {
	switch pt {
	case TypeEngineRPM, TypeCoolantTemperature, TypeBatteryVoltage,
		TypeEngineRuntime, TypeCurrentFuelFlow, TypeOilPressure:
		return true
	}
	return false
}

// ParseParameterType resolves a config name like "ENGINE_RPM".
func ParseParameterType(name string) (ParameterType, error) {
	for i, n := range typeNames {
		if n == name {
			return ParameterType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown parameter type name=%s", name)
}

// EngineParameter is one record of the device descriptor table.
// The engine id and type are bit-packed into ID: engine in the high byte,
// type in the low byte. NotificationHeader is the 2-byte prefix telemetry
// notifications for this parameter arrive with; zero means the parameter is
// present in the table but never streamed.
type EngineParameter struct {
	ID                 uint16
	NotificationHeader uint16
}

func (p *EngineParameter) EngineID() uint8     { return uint8(p.ID >> 8) }
func (p *EngineParameter) Type() ParameterType { return ParameterType(p.ID & 0xff) }
func (p *EngineParameter) Enabled() bool       { return p.NotificationHeader != 0 }

func (p *EngineParameter) String() string {
	return fmt.Sprintf("param(id=%d header=%04x type=%s engine=%d)",
		p.ID, p.NotificationHeader, p.Type(), p.EngineID())
}

// DataReceiver accepts decoded engine telemetry. Implementations must not
// assume calls arrive on any particular goroutine.
type DataReceiver interface {
	// UpdateParameters replaces the receiver's notion of the available
	// parameter set. Called once per descriptor dump.
	UpdateParameters(params []*EngineParameter)

	// AcceptData delivers one decoded value for one parameter.
	AcceptData(param *EngineParameter, value float64) error
}
