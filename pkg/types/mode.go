package types

import "fmt"

// ModeName is the logical operating mode of the gateway.
type ModeName string

const (
	ModeTimeOfUse       ModeName = "time_of_use"
	ModeSelfConsumption ModeName = "self_consumption"
	ModeEmergencyBackup ModeName = "emergency_backup"

	// ModeUnknown is reported when the device returns a running-mode code
	// that isn't in the mode table.
	ModeUnknown ModeName = "unknown_mode"
)

// ModeNames returns the modes that can be set.
func ModeNames() []ModeName {
	return []ModeName{ModeTimeOfUse, ModeSelfConsumption, ModeEmergencyBackup}
}

// ParseModeName validates s as a settable mode.
func ParseModeName(s string) (ModeName, error) {
	for _, m := range ModeNames() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode: %q", s)
}

// ModeState is the mode currently reported by the gateway. SOC is the
// mode-specific stored state of charge and is nil when the mode is unknown.
type ModeState struct {
	Mode        ModeName `json:"mode"`
	SOC         *float64 `json:"soc"`
	RunningMode int      `json:"runningMode"`
}
