package proxy

import "fmt"

// Mode defines how the proxy treats incoming traffic.
type Mode string

const (
	// ModeSimulate serves responses from the installed simulation.
	ModeSimulate Mode = "simulate"
	// ModeCapture forwards upstream and records the exchange as a pair.
	ModeCapture Mode = "capture"
	// ModeSpy serves simulated responses when a pair matches and falls
	// back to the real upstream otherwise.
	ModeSpy Mode = "spy"
	// ModeDiff forwards upstream and records differences against the
	// expected simulated response.
	ModeDiff Mode = "diff"
)

// ParseMode converts a mode name into a Mode.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case ModeSimulate, ModeCapture, ModeSpy, ModeDiff:
		return Mode(name), nil
	default:
		return "", fmt.Errorf("unknown proxy mode: %q", name)
	}
}

// AllowsSimulationImport reports whether importing simulation data makes
// sense in this mode. Capture starts from observed traffic only.
func (m Mode) AllowsSimulationImport() bool {
	return m != ModeCapture
}

func (m Mode) String() string {
	return string(m)
}
