// Package monitor implements the boot success confirmation step. It is the
// only code path that can terminate a rollback cycle early: a broken image
// that never reaches it is exactly what makes the selector roll back.
package monitor

import (
	"fmt"

	"github.com/fotad-io/fotad/internal/bootstate"
	"github.com/fotad-io/fotad/pkg/log"
)

// Monitor marks the running boot as successful once the application is
// judged stable. Callers are expected to gate the call behind a settle delay
// or an explicit readiness check, never to invoke it at process start.
type Monitor struct {
	store  *bootstate.Store
	logger log.Logger
}

func New(store *bootstate.Store) *Monitor {
	return &Monitor{
		store:  store,
		logger: log.WithName("monitor"),
	}
}

// MarkSuccess resets the attempt counters and, if an update cycle left a
// pending version behind, promotes it to the confirmed version. It is
// idempotent: repeated calls leave the record unchanged.
func (m *Monitor) MarkSuccess() (bootstate.State, error) {
	st, err := m.store.Read()
	if err != nil {
		return bootstate.State{}, fmt.Errorf("failed to read boot state: %w", err)
	}

	changed := st.AttemptCount != 0 || st.TotalUnconfirmed != 0 || st.BothFailed

	st.AttemptCount = 0
	st.TotalUnconfirmed = 0
	st.BothFailed = false

	if st.PendingVersion != "" {
		m.logger.Info("Confirming installed version",
			"version", st.PendingVersion,
			"previous", st.ConfirmedVersion)
		st.ConfirmedVersion = st.PendingVersion
		st.PendingVersion = ""
		changed = true
	}

	if !changed {
		return st, nil
	}

	if err := m.store.Write(st); err != nil {
		return bootstate.State{}, fmt.Errorf("failed to persist boot confirmation: %w", err)
	}

	m.logger.Info("Boot marked successful",
		"slot", st.ActiveSlot,
		"version", st.ConfirmedVersion)

	return st, nil
}
