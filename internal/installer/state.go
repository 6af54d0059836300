package installer

import "fmt"

// State is a step of the installer state machine.
type State string

const (
	StateStart           State = "start"
	StatePreflight       State = "pre_flight"
	StatePreRebootPhase  State = "pre_reboot_phase"
	StateScheduleReboot  State = "schedule_reboot" // Resume unit enabled, reboot requested
	StateResumed         State = "resumed"         // Started by the resume unit, or dry-run carrying on
	StatePostRebootPhase State = "post_reboot_phase"
	StateManualPhase     State = "manual_phase"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[State]map[State]bool{
	StateStart: {
		StatePreflight: true,
	},
	StatePreflight: {
		StatePreRebootPhase: true, // fresh or continued automated run
		StateResumed:        true, // --resume after reboot
		StateManualPhase:    true, // category flags
		StateFailed:         true,
	},
	StatePreRebootPhase: {
		StateScheduleReboot: true,
		StateFailed:         true,
	},
	StateScheduleReboot: {
		StateResumed: true, // dry-run continues in-process
		StateFailed:  true,
	},
	StateResumed: {
		StatePostRebootPhase: true,
		StateFailed:          true,
	},
	StatePostRebootPhase: {
		StateDone:   true,
		StateFailed: true,
	},
	StateManualPhase: {
		StateDone:   true,
		StateFailed: true,
	},
	// Terminal states
	StateDone:   {},
	StateFailed: {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalState returns true if no further transitions are allowed.
func IsTerminalState(s State) bool {
	return s == StateDone || s == StateFailed
}
