package signalk

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/marine-iot/vvmgate/vvm"
)

// Delta is the outbound wire unit: one or more path/value updates for the
// local vessel.
type Delta struct {
	RequestID string   `json:"requestId"`
	Context   string   `json:"context"`
	Updates   []Update `json:"updates"`
}

type Update struct {
	Values []Value `json:"values"`
}

type Value struct {
	Path  string  `json:"path"`
	Value float64 `json:"value"`
}

func NewDelta(path string, value float64) *Delta {
	return &Delta{
		RequestID: uuid.New().String(),
		Context:   "vessels.self",
		Updates: []Update{
			{Values: []Value{{Path: path, Value: value}}},
		},
	}
}

type loginMessage struct {
	RequestID string      `json:"requestId"`
	Login     credentials `json:"login"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Path maps a parameter to its bus path: engine 0 is port, engine 1 is
// starboard, higher engines use their decimal id.
func Path(param *vvm.EngineParameter) string {
	var engine string
	switch param.EngineID() {
	case 0:
		engine = "port"
	case 1:
		engine = "starboard"
	default:
		engine = strconv.Itoa(int(param.EngineID()))
	}
	return "propulsion." + engine + "." + pathSuffix(param.Type())
}

func pathSuffix(pt vvm.ParameterType) string {
	switch pt {
	case vvm.TypeEngineRPM:
		return "revolutions"
	case vvm.TypeCoolantTemperature:
		return "temperature"
	case vvm.TypeBatteryVoltage:
		return "alternatorVoltage"
	case vvm.TypeEngineRuntime:
		return "runTime"
	case vvm.TypeCurrentFuelFlow:
		return "fuel.rate"
	case vvm.TypeOilPressure:
		return "oilPressure"
	}
	return pt.String()
}
