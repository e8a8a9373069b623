package types

// SwitchCount is the number of smart circuits on a gateway.
const SwitchCount = 3

// SwitchState is a desired smart-switch state. A nil slot leaves that circuit
// unchanged.
type SwitchState [SwitchCount]*bool

// Switches is the reported on/off state of each smart circuit.
type Switches [SwitchCount]bool

// On returns a pointer to true, for building a SwitchState.
func On() *bool {
	v := true
	return &v
}

// Off returns a pointer to false, for building a SwitchState.
func Off() *bool {
	v := false
	return &v
}

// Changes reports whether any slot is set.
func (s SwitchState) Changes() bool {
	for _, v := range s {
		if v != nil {
			return true
		}
	}
	return false
}
