package agent

// Status is a point-in-time snapshot of the agent, served by the operator
// API and published by the notifier. Reading it has no side effects.
type Status struct {
	// State is the current state machine state.
	State string `json:"state"`

	// ActiveSlot and StandbySlot reflect the boot state record as of the
	// last read.
	ActiveSlot  string `json:"active_slot"`
	StandbySlot string `json:"standby_slot"`

	// ConfirmedVersion is the version of the last confirmed boot;
	// PendingVersion is set after a completed install awaiting reboot.
	ConfirmedVersion string `json:"confirmed_version"`
	PendingVersion   string `json:"pending_version,omitempty"`

	// PendingSwitch names the slot the next power cycle will adopt, if a
	// switch is staged.
	PendingSwitch string `json:"pending_switch,omitempty"`

	// TargetVersion is the version of an update cycle in flight.
	TargetVersion string `json:"target_version,omitempty"`

	// BothFailed mirrors the persistent escalation flag.
	BothFailed bool `json:"both_failed,omitempty"`

	// LastError describes the most recent failed cycle, classified
	// ("TransportError: ...", "IntegrityError: ..."). Cleared by the
	// next successful cycle.
	LastError string `json:"last_error,omitempty"`
}
