// Package agent implements the long-running update daemon: it polls the
// update server, downloads and verifies artifacts into a scratch area,
// flashes the standby slot, and stages the switchover for the next power
// cycle. All failures are local to one cycle; the agent always returns to
// idle and tries again on the next poll.
package agent

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fotad-io/fotad/internal/bootstate"
	"github.com/fotad-io/fotad/internal/fastboot"
	"github.com/fotad-io/fotad/internal/metrics"
	"github.com/fotad-io/fotad/internal/slot"
	"github.com/fotad-io/fotad/pkg/log"
)

// Config wires the agent's collaborators. Store, Layout, Manifest, Fetcher
// and Installer are required.
type Config struct {
	Store     *bootstate.Store
	Layout    slot.Layout
	Manifest  *ManifestClient
	Fetcher   Fetcher
	Installer *Installer
	Rebooter  Rebooter
	Notifier  Notifier

	ScratchDir   string
	PollInterval time.Duration

	// KernelImage and BaseCmdline parameterize the regenerated fast-boot
	// bundle; the root device is appended per slot.
	KernelImage string
	BaseCmdline string
}

const (
	defaultKernelImage = "zImage"
	defaultBaseCmdline = "console=ttyO0,115200n8 ro rootwait"
)

type Agent struct {
	cfg Config
	fsm *FiniteStateMachine

	// mu guards the boot state store and the cached status fields. The
	// cycle loop is single-goroutine; the operator API calls in from
	// other goroutines.
	mu        sync.Mutex
	cached    bootstate.State
	target    string
	lastError string

	checkNow chan struct{}
	logger   log.Logger
}

func New(cfg Config) (*Agent, error) {
	if cfg.Store == nil || cfg.Manifest == nil || cfg.Fetcher == nil || cfg.Installer == nil {
		return nil, fmt.Errorf("agent config incomplete")
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.Rebooter == nil {
		cfg.Rebooter = NopRebooter{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.KernelImage == "" {
		cfg.KernelImage = defaultKernelImage
	}
	if cfg.BaseCmdline == "" {
		cfg.BaseCmdline = defaultBaseCmdline
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Hour
	}

	a := &Agent{
		cfg:      cfg,
		checkNow: make(chan struct{}, 1),
		logger:   log.WithName("agent"),
	}
	a.fsm = NewFiniteStateMachine(a.onStateChange)

	if st, err := cfg.Store.Read(); err == nil {
		a.refreshCached(st)
	}
	return a, nil
}

// refreshCached records the latest persisted boot state and mirrors the
// both-slots-failed flag onto its gauge. Callers hold mu (or, in New, have
// exclusive access).
func (a *Agent) refreshCached(st bootstate.State) {
	a.cached = st
	metrics.SetBothFailed(st.BothFailed)
}

func (a *Agent) onStateChange(state string) {
	metrics.SetAgentState(AllStates, state)
	a.cfg.Notifier.StateChanged(context.Background(), a.snapshot(state))
}

// Run drives the poll loop until ctx is cancelled. One cycle is in flight
// at a time; a manual trigger received mid-cycle queues exactly one
// follow-up check.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Update agent started",
		"interval", a.cfg.PollInterval.String(),
		"server", a.cfg.Manifest.ServerURL,
		"device", a.cfg.Manifest.DeviceID)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	a.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Update agent stopping")
			return nil
		case <-ticker.C:
			a.runCycle(ctx)
		case <-a.checkNow:
			a.runCycle(ctx)
		}
	}
}

// ForceCheck requests an immediate cycle. Returns false when a check is
// already queued behind the running cycle.
func (a *Agent) ForceCheck() bool {
	select {
	case a.checkNow <- struct{}{}:
		return true
	default:
		return false
	}
}

// ForceRollback flips the active slot immediately, bypassing the attempt
// counter, and clears any staged switch. The flip takes effect on the next
// power cycle; rebooting is left to the operator.
func (a *Agent) ForceRollback() (Status, error) {
	a.mu.Lock()
	st, err := a.cfg.Store.Read()
	if err != nil {
		a.mu.Unlock()
		return Status{}, fmt.Errorf("read boot state: %w", err)
	}

	from := st.ActiveSlot
	st.ActiveSlot = st.ActiveSlot.Other()
	st.AttemptCount = 0
	st.PendingSwitch = ""
	st.PendingVersion = ""
	if err := a.cfg.Store.Write(st); err != nil {
		a.mu.Unlock()
		return Status{}, fmt.Errorf("write boot state: %w", err)
	}
	a.refreshCached(st)
	a.mu.Unlock()

	a.logger.Warn("Forced rollback staged", "from", from, "to", st.ActiveSlot)
	return a.snapshot(a.fsm.Current()), nil
}

// Status reports the agent without side effects.
func (a *Agent) Status() Status {
	a.mu.Lock()
	if st, err := a.cfg.Store.Read(); err == nil {
		a.refreshCached(st)
	}
	a.mu.Unlock()
	return a.snapshot(a.fsm.Current())
}

func (a *Agent) snapshot(state string) Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		State:            state,
		ActiveSlot:       a.cached.ActiveSlot.Label(),
		StandbySlot:      a.cached.StandbySlot().Label(),
		ConfirmedVersion: a.cached.ConfirmedVersion,
		PendingVersion:   a.cached.PendingVersion,
		PendingSwitch:    string(a.cached.PendingSwitch),
		TargetVersion:    a.target,
		BothFailed:       a.cached.BothFailed,
		LastError:        a.lastError,
	}
}

func (a *Agent) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := a.fsm.Event(ctx, EventCheck); err != nil {
		a.logger.Error(err, "Cannot start update cycle", "state", a.fsm.Current())
		return
	}

	updated, err := a.cycle(ctx)

	switch {
	case err == nil && updated:
		metrics.CycleTotal.WithLabelValues("updated").Inc()
		a.setLastError("")
	case err == nil:
		metrics.CycleTotal.WithLabelValues("no_update").Inc()
		a.setLastError("")
	default:
		metrics.CycleTotal.WithLabelValues("failed").Inc()
		if kind := KindOf(err); kind != "" {
			metrics.CycleErrorTotal.WithLabelValues(string(kind)).Inc()
		}
		a.setLastError(err.Error())
		a.logger.Error(err, "Update cycle failed")

		a.mustEvent(ctx, EventFail)
		a.mustEvent(ctx, EventReset)
	}

	a.setTarget("")
	a.cleanupScratch()
	a.cfg.Notifier.CycleFinished(context.Background(), a.snapshot(a.fsm.Current()))
}

// cycle runs one pass through the state machine. Cancellation is honored
// only between steps, never mid-write.
func (a *Agent) cycle(ctx context.Context) (updated bool, err error) {
	// Checking.
	st, err := a.readState()
	if err != nil {
		return false, err
	}

	m, err := a.cfg.Manifest.Check(ctx, st.ConfirmedVersion, st.ActiveSlot)
	if err != nil {
		return false, err
	}
	if reason := a.skipReason(m, st); reason != "" {
		if reason != "no update available" {
			a.logger.Info("Skipping advertised update", "version", m.Version, "reason", reason)
		}
		a.mustEvent(ctx, EventNoUpdate)
		return false, nil
	}

	bootArt, rootfsArt, err := pickArtifacts(m)
	if err != nil {
		return false, err
	}
	a.setTarget(m.Version)
	a.logger.Info("Update available",
		"version", m.Version,
		"mandatory", m.Mandatory,
		"standby", st.StandbySlot())

	if ctx.Err() != nil {
		return false, transportErr("cycle aborted: %w", ctx.Err())
	}
	a.mustEvent(ctx, EventUpdateFound)

	// Downloading.
	if err := os.MkdirAll(a.cfg.ScratchDir, 0o755); err != nil {
		return false, storageErr("create scratch dir: %w", err)
	}
	bootPath := scratchPath(a.cfg.ScratchDir, bootArt)
	rootfsPath := scratchPath(a.cfg.ScratchDir, rootfsArt)
	for _, d := range []struct {
		art  Artifact
		dest string
	}{{bootArt, bootPath}, {rootfsArt, rootfsPath}} {
		if err := a.cfg.Fetcher.Fetch(ctx, d.art, d.dest); err != nil {
			return false, err
		}
		if fi, serr := os.Stat(d.dest); serr == nil {
			metrics.DownloadedBytes.Add(float64(fi.Size()))
		}
	}

	if ctx.Err() != nil {
		return false, transportErr("cycle aborted: %w", ctx.Err())
	}
	a.mustEvent(ctx, EventDownloaded)

	// Verifying. All artifacts must pass before anything touches the
	// standby slot.
	if err := verifyArtifact(bootArt, bootPath); err != nil {
		return false, err
	}
	if err := verifyArtifact(rootfsArt, rootfsPath); err != nil {
		return false, err
	}

	if ctx.Err() != nil {
		return false, transportErr("cycle aborted: %w", ctx.Err())
	}
	a.mustEvent(ctx, EventVerified)

	// Installing.
	region := a.cfg.Layout[st.StandbySlot()]
	if err := a.cfg.Installer.Install(ctx, region, bootPath, rootfsPath); err != nil {
		return false, err
	}
	a.mustEvent(ctx, EventInstalled)

	// Switching: regenerate the slot's fast-boot bundle and stage the
	// flip. The selector performs the actual switch on the next power
	// cycle.
	bundle := &fastboot.Bundle{
		Version:     m.Version,
		Kernel:      a.cfg.KernelImage,
		CommandLine: fmt.Sprintf("%s root=%s", a.cfg.BaseCmdline, region.RootDev),
	}
	if err := a.cfg.Installer.WriteBootArgs(ctx, region, bundle); err != nil {
		return false, err
	}
	if err := a.stageSwitch(region.ID, m.Version); err != nil {
		return false, err
	}
	a.mustEvent(ctx, EventSwitched)

	a.logger.Info("Update staged, requesting reboot", "version", m.Version, "slot", region.ID)
	if err := a.cfg.Rebooter.Reboot(ctx); err != nil {
		// The switch is durable; adoption just waits for the next
		// power cycle.
		a.logger.Error(err, "Reboot request failed")
	}
	return true, nil
}

// skipReason decides whether an advertised manifest applies to this
// device. Empty means proceed.
func (a *Agent) skipReason(m *Manifest, st bootstate.State) string {
	switch {
	case !m.UpdateAvailable:
		return "no update available"
	case m.Version == st.ConfirmedVersion:
		return "already on advertised version"
	case m.Version == st.PendingVersion:
		return "version already installed, awaiting reboot"
	case m.MinVersion != "" && st.ConfirmedVersion != "" &&
		compareVersions(st.ConfirmedVersion, m.MinVersion) < 0 && !m.Mandatory:
		return fmt.Sprintf("current version below minimum %s", m.MinVersion)
	}
	return ""
}

func pickArtifacts(m *Manifest) (boot, rootfs Artifact, err error) {
	var haveBoot, haveRootfs bool
	for _, a := range m.Artifacts {
		switch artifactRole(a) {
		case roleBoot:
			boot, haveBoot = a, true
		case roleRootfs:
			rootfs, haveRootfs = a, true
		}
	}
	if !haveBoot || !haveRootfs {
		return boot, rootfs, transportErr("manifest %s lacks boot/rootfs artifacts", m.Version)
	}
	return boot, rootfs, nil
}

func (a *Agent) readState() (bootstate.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.cfg.Store.Read()
	if err != nil {
		return bootstate.State{}, stateErr("boot state unreadable: %w", err)
	}
	a.refreshCached(st)
	return st, nil
}

// stageSwitch records the pending switch without touching active_slot.
func (a *Agent) stageSwitch(target slot.ID, version string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.cfg.Store.Read()
	if err != nil {
		return stateErr("boot state unreadable: %w", err)
	}
	st.PendingSwitch = target
	st.PendingVersion = version
	if err := a.cfg.Store.Write(st); err != nil {
		return stateErr("stage switch: %w", err)
	}
	a.refreshCached(st)
	return nil
}

func (a *Agent) setTarget(v string) {
	a.mu.Lock()
	a.target = v
	a.mu.Unlock()
}

func (a *Agent) setLastError(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.mu.Unlock()
}

// mustEvent fires a transition the drive order guarantees to be valid.
func (a *Agent) mustEvent(ctx context.Context, event string) {
	if err := a.fsm.Event(ctx, event); err != nil {
		a.logger.Error(err, "State machine rejected event", "event", event, "state", a.fsm.Current())
	}
}

func (a *Agent) cleanupScratch() {
	if a.cfg.ScratchDir == "" {
		return
	}
	entries, err := os.ReadDir(a.cfg.ScratchDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		os.Remove(a.cfg.ScratchDir + "/" + e.Name())
	}
}
