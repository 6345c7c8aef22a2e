// Package bootstate implements the persistent boot state record consulted at
// every power cycle. The record lives at a fixed location outside both slots
// and is written with all-or-nothing semantics: two redundant copies, each
// carrying a generation counter and a CRC, so a crash at any byte offset
// leaves at least one valid copy behind.
package bootstate

import (
	"fmt"

	"github.com/fotad-io/fotad/internal/slot"
)

// DefaultAttemptLimit is the boot attempt budget used when provisioning a
// fresh record.
const DefaultAttemptLimit = 3

// State is the single persistent record driving slot decisions.
type State struct {
	// ActiveSlot is the slot selected to boot. Always exactly A or B.
	ActiveSlot slot.ID

	// AttemptCount counts consecutive unconfirmed boot attempts of the
	// active slot. Reset by the boot success monitor and on every slot
	// switch.
	AttemptCount uint32

	// AttemptLimit triggers rollback when AttemptCount reaches it.
	AttemptLimit uint32

	// PendingSwitch, when set, names the slot a completed update wants
	// active. Consumed by the slot selector on the next power cycle.
	// Empty means no switch is pending.
	PendingSwitch slot.ID

	// ConfirmedVersion is the version of the last successfully booted
	// slot.
	ConfirmedVersion string

	// PendingVersion is written together with PendingSwitch and promoted
	// to ConfirmedVersion by the boot success monitor.
	PendingVersion string

	// TotalUnconfirmed counts boot attempts across both slots since the
	// last confirmed boot. It drives the BothFailed escalation.
	TotalUnconfirmed uint32

	// BothFailed is raised once TotalUnconfirmed reaches twice the
	// attempt limit, signalling that neither slot reaches a confirmed
	// boot. Selection keeps alternating regardless; the flag exists so
	// recovery tooling can give a distinct indication.
	BothFailed bool
}

// Default returns the hard-coded safe state used at first provisioning and
// as the fallback when neither stored copy validates.
func Default(limit uint32) State {
	if limit == 0 {
		limit = DefaultAttemptLimit
	}
	return State{
		ActiveSlot:   slot.A,
		AttemptCount: 0,
		AttemptLimit: limit,
	}
}

// Validate checks the record's invariants before it is persisted.
func (s *State) Validate() error {
	if !s.ActiveSlot.Valid() {
		return fmt.Errorf("active slot must be A or B, got %q", s.ActiveSlot)
	}
	if s.PendingSwitch != "" && !s.PendingSwitch.Valid() {
		return fmt.Errorf("pending switch must be A, B or empty, got %q", s.PendingSwitch)
	}
	if s.AttemptLimit == 0 {
		return fmt.Errorf("attempt limit must be positive")
	}
	if len(s.ConfirmedVersion) > maxVersionLen || len(s.PendingVersion) > maxVersionLen {
		return fmt.Errorf("version string exceeds %d bytes", maxVersionLen)
	}
	return nil
}

// StandbySlot returns the slot that is not active.
func (s *State) StandbySlot() slot.ID {
	return s.ActiveSlot.Other()
}
