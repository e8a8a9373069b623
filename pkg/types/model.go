package types

import "time"

// Current holds instantaneous power readings reported by the gateway. Values
// are passed through as the device reports them; units belong to the consumer.
type Current struct {
	SolarKW     float64 `json:"solarKW"`
	GeneratorKW float64 `json:"generatorKW"`
	BatteryKW   float64 `json:"batteryKW"`
	GridKW      float64 `json:"gridKW"`
	HomeKW      float64 `json:"homeKW"`
	BatterySOC  float64 `json:"batterySOC"`
}

// Totals holds today's cumulative energy counters.
type Totals struct {
	BatteryChargeKWH    float64 `json:"batteryChargeKWH"`
	BatteryDischargeKWH float64 `json:"batteryDischargeKWH"`
	GridImportKWH       float64 `json:"gridImportKWH"`
	GridExportKWH       float64 `json:"gridExportKWH"`
	SolarKWH            float64 `json:"solarKWH"`
	GeneratorKWH        float64 `json:"generatorKWH"`
	HomeKWH             float64 `json:"homeKWH"`
}

// Stats is a snapshot of a single status query.
type Stats struct {
	Current Current `json:"current"`
	Totals  Totals  `json:"totals"`
}

// Snapshot is a Stats reading persisted to history.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	GatewayID string    `json:"gatewayID"`
	Stats     Stats     `json:"stats"`
}

// ActionKind identifies which control was changed.
type ActionKind string

const (
	ActionKindSetMode     ActionKind = "setMode"
	ActionKindSetSwitches ActionKind = "setSwitches"
)

// Action records a control write sent to the gateway along with the vendor
// response code.
type Action struct {
	Timestamp time.Time   `json:"timestamp"`
	GatewayID string      `json:"gatewayID"`
	Kind      ActionKind  `json:"kind"`
	Mode      ModeName    `json:"mode,omitempty"`
	SOC       *float64    `json:"soc,omitempty"`
	Switches  SwitchState `json:"switches"`
	Code      int         `json:"code"`
	Message   string      `json:"message,omitempty"`
}
