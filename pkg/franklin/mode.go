package franklin

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/raterudder/franklinwh/pkg/types"
)

// Mode is a settable operating mode with its vendor codes and the target state
// of charge sent alongside it.
type Mode struct {
	Name      types.ModeName
	CurrentID int
	WorkMode  int
	SOC       float64
}

// modeCodes maps every running-mode code the gateway may report to its
// logical mode. Older firmware reports the 93xx codes.
var modeCodes = map[int]types.ModeName{
	9322:   types.ModeTimeOfUse,
	9323:   types.ModeSelfConsumption,
	9324:   types.ModeEmergencyBackup,
	105249: types.ModeTimeOfUse,
	122324: types.ModeSelfConsumption,
	55842:  types.ModeEmergencyBackup,
}

// modeDefaults holds the codes sent when setting each mode.
var modeDefaults = map[types.ModeName]Mode{
	types.ModeTimeOfUse:       {Name: types.ModeTimeOfUse, CurrentID: 105249, WorkMode: 1, SOC: 15},
	types.ModeSelfConsumption: {Name: types.ModeSelfConsumption, CurrentID: 122324, WorkMode: 2, SOC: 20},
	types.ModeEmergencyBackup: {Name: types.ModeEmergencyBackup, CurrentID: 55842, WorkMode: 3, SOC: 100},
}

// modeSOCField is the switch status field storing each mode's SoC setting.
var modeSOCField = map[types.ModeName]string{
	types.ModeTimeOfUse:       "touMinSoc",
	types.ModeSelfConsumption: "selfMinSoc",
	types.ModeEmergencyBackup: "backupMaxSoc",
}

// ModeByName returns the mode with its default SoC.
func ModeByName(name types.ModeName) (Mode, error) {
	m, ok := modeDefaults[name]
	if !ok {
		return Mode{}, fmt.Errorf("unknown mode: %q", name)
	}
	return m, nil
}

// TimeOfUse returns the time-of-use mode with the given minimum SoC.
func TimeOfUse(soc float64) Mode {
	return modeDefaults[types.ModeTimeOfUse].WithSOC(soc)
}

// SelfConsumption returns the self-consumption mode with the given minimum SoC.
func SelfConsumption(soc float64) Mode {
	return modeDefaults[types.ModeSelfConsumption].WithSOC(soc)
}

// EmergencyBackup returns the emergency backup mode with the given target SoC.
func EmergencyBackup(soc float64) Mode {
	return modeDefaults[types.ModeEmergencyBackup].WithSOC(soc)
}

// WithSOC returns a copy of m with a different SoC.
func (m Mode) WithSOC(soc float64) Mode {
	m.SOC = soc
	return m
}

func (m Mode) validate() error {
	if _, ok := modeDefaults[m.Name]; !ok {
		return fmt.Errorf("unknown mode: %q", m.Name)
	}
	if m.SOC < 0 || m.SOC > 100 {
		return fmt.Errorf("soc must be between 0 and 100, got %v", m.SOC)
	}
	return nil
}

func (m Mode) payload(gatewayID string) url.Values {
	data := url.Values{}
	data.Set("currendId", strconv.Itoa(m.CurrentID)) // yes, this is misspelled
	data.Set("gatewayId", gatewayID)
	data.Set("lang", "EN_US")
	data.Set("oldIndex", "1")
	data.Set("soc", strconv.FormatFloat(m.SOC, 'f', -1, 64))
	data.Set("stromEn", "0")
	data.Set("workMode", strconv.Itoa(m.WorkMode))
	return data
}
