// Package selector implements the boot slot decision made once per power
// cycle, before the operating system is available. It is deliberately small
// and synchronous: read the boot state, apply the switch/rollback rules,
// persist, and hand the chosen slot to the fast boot path.
package selector

import (
	"fmt"

	"github.com/fotad-io/fotad/internal/bootstate"
	"github.com/fotad-io/fotad/internal/slot"
	"github.com/fotad-io/fotad/pkg/log"
)

// Decision is the outcome of one selector run.
type Decision struct {
	// Slot to boot.
	Slot slot.ID

	// RolledBack is true when the attempt limit forced a switch to the
	// other slot.
	RolledBack bool

	// SwitchedTo is true when a pending switch from a completed update
	// was adopted.
	SwitchedTo bool

	// BothFailed mirrors the persistent escalation flag.
	BothFailed bool

	// State is the persisted record after the decision.
	State bootstate.State
}

// Selector applies the slot selection algorithm against a boot state store.
type Selector struct {
	store        *bootstate.Store
	defaultLimit uint32
	logger       log.Logger
}

// New creates a Selector. defaultLimit is only used when the stored record
// is missing or corrupt and the hard-coded safe default takes over.
func New(store *bootstate.Store, defaultLimit uint32) *Selector {
	return &Selector{
		store:        store,
		defaultLimit: defaultLimit,
		logger:       log.WithName("selector"),
	}
}

// Select runs the per-boot algorithm:
//
//  1. Adopt a pending switch, if set, with a fresh attempt budget.
//  2. Roll back to the other slot once the attempt limit is reached.
//  3. Count this boot attempt and persist.
//
// A corrupt or missing record falls back to the safe default (slot A, zero
// attempts) instead of failing closed; the boot path must stay serviceable.
func (s *Selector) Select() (Decision, error) {
	st, stored := s.store.ReadOrDefault(s.defaultLimit)
	if !stored {
		s.logger.Warn("Boot state missing or corrupt, using safe defaults",
			"slot", st.ActiveSlot, "attemptLimit", st.AttemptLimit)
	}

	var d Decision

	// A just-installed update always gets a fresh attempt budget.
	if st.PendingSwitch != "" {
		s.logger.Info("Adopting pending switch", "from", st.ActiveSlot, "to", st.PendingSwitch)
		st.ActiveSlot = st.PendingSwitch
		st.PendingSwitch = ""
		st.AttemptCount = 0
		d.SwitchedTo = true
	} else if st.AttemptCount >= st.AttemptLimit {
		// Automatic rollback: no slot is retried more than AttemptLimit
		// times consecutively.
		s.logger.Warn("Attempt limit reached, rolling back",
			"failedSlot", st.ActiveSlot,
			"attempts", st.AttemptCount,
			"limit", st.AttemptLimit)
		st.ActiveSlot = st.ActiveSlot.Other()
		st.AttemptCount = 0
		d.RolledBack = true
	}

	st.AttemptCount++
	st.TotalUnconfirmed++

	// With both slots exhausted the selector keeps alternating so the
	// device stays reachable by recovery tooling, but the condition is
	// recorded for a distinct indication.
	if !st.BothFailed && st.TotalUnconfirmed > 2*st.AttemptLimit {
		s.logger.Error(nil, "Neither slot reaches a confirmed boot",
			"totalAttempts", st.TotalUnconfirmed)
		st.BothFailed = true
	}

	if err := s.store.Write(st); err != nil {
		return Decision{}, fmt.Errorf("failed to persist boot decision: %w", err)
	}

	d.Slot = st.ActiveSlot
	d.BothFailed = st.BothFailed
	d.State = st

	s.logger.Info("Selected boot slot",
		"slot", d.Slot,
		"attempt", st.AttemptCount,
		"limit", st.AttemptLimit)

	return d, nil
}
