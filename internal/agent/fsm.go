package agent

import (
	"context"

	"github.com/looplab/fsm"

	fsmutil "github.com/fotad-io/fotad/internal/pkg/util/fsm"
)

// Update cycle states. StateIdle is the rest state between cycles;
// StateFailed is transient, every failure returns to idle before the next
// cycle starts.
const (
	StateIdle        = "Idle"
	StateChecking    = "Checking"
	StateDownloading = "Downloading"
	StateVerifying   = "Verifying"
	StateInstalling  = "Installing"
	StateSwitching   = "Switching"
	StateFailed      = "Failed"
)

// AllStates enumerates every state, for gauges and validation.
var AllStates = []string{
	StateIdle, StateChecking, StateDownloading, StateVerifying,
	StateInstalling, StateSwitching, StateFailed,
}

const (
	// EventCheck starts a cycle.
	EventCheck = "event_check"
	// EventNoUpdate ends a cycle in Checking with nothing to do.
	EventNoUpdate = "event_no_update"
	// EventUpdateFound
	EventUpdateFound = "event_update_found"
	// EventDownloaded
	EventDownloaded = "event_downloaded"
	// EventVerified
	EventVerified = "event_verified"
	// EventInstalled
	EventInstalled = "event_installed"
	// EventSwitched ends a successful cycle.
	EventSwitched = "event_switched"
	// EventFail aborts the cycle from any working state.
	EventFail = "event_fail"
	// EventReset returns a failed cycle to Idle.
	EventReset = "event_reset"
)

// StateObserver is notified after every committed transition.
type StateObserver func(state string)

type FiniteStateMachine struct {
	*fsm.FSM

	observer StateObserver
}

func NewFiniteStateMachine(observer StateObserver) *FiniteStateMachine {
	f := &FiniteStateMachine{observer: observer}

	working := []string{
		StateChecking, StateDownloading, StateVerifying,
		StateInstalling, StateSwitching,
	}

	events := fsm.Events{
		{Name: EventCheck, Src: []string{StateIdle}, Dst: StateChecking},
		{Name: EventNoUpdate, Src: []string{StateChecking}, Dst: StateIdle},
		{Name: EventUpdateFound, Src: []string{StateChecking}, Dst: StateDownloading},
		{Name: EventDownloaded, Src: []string{StateDownloading}, Dst: StateVerifying},
		{Name: EventVerified, Src: []string{StateVerifying}, Dst: StateInstalling},
		{Name: EventInstalled, Src: []string{StateInstalling}, Dst: StateSwitching},
		{Name: EventSwitched, Src: []string{StateSwitching}, Dst: StateIdle},

		{Name: EventFail, Src: working, Dst: StateFailed},
		{Name: EventReset, Src: []string{StateFailed}, Dst: StateIdle},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(f.ActionEnterState),
	}

	f.FSM = fsm.NewFSM(StateIdle, events, callbacks)
	return f
}

// ActionEnterState is a "Side-Effect" callback fanning every transition out
// to the observer (metrics gauge, MQTT notifier).
func (f *FiniteStateMachine) ActionEnterState(ctx context.Context, e *fsm.Event) error {
	if f.observer != nil {
		f.observer(e.Dst)
	}
	return nil
}
