package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fotad-io/fotad/internal/bootstate"
	"github.com/fotad-io/fotad/internal/fastboot"
	"github.com/fotad-io/fotad/internal/metrics"
	"github.com/fotad-io/fotad/internal/slot"
)

// fakeProvisioner records calls; Mount is a no-op so extraction lands in
// the shared mount dir.
type fakeProvisioner struct {
	formatted []string
	mounted   []string
	unmounted int

	formatErr error
}

func (p *fakeProvisioner) Format(_ context.Context, dev, label string) error {
	if p.formatErr != nil {
		return p.formatErr
	}
	p.formatted = append(p.formatted, dev+":"+label)
	return nil
}

func (p *fakeProvisioner) Mount(_ context.Context, dev, dir string) error {
	p.mounted = append(p.mounted, dev)
	return nil
}

func (p *fakeProvisioner) Unmount(_ context.Context, dir string) error {
	p.unmounted++
	return nil
}

// fakeExtractor records extractions and drops a kernel image into the
// target dir when given a boot archive, the way a real boot tarball would.
type fakeExtractor struct {
	extracted []string
}

func (e *fakeExtractor) Extract(_ context.Context, path, dir string) error {
	e.extracted = append(e.extracted, filepath.Base(path))
	if filepath.Base(path) == "boot.tar.gz" {
		return os.WriteFile(filepath.Join(dir, "zImage"), []byte("kernel"), 0o644)
	}
	return nil
}

type fakeRebooter struct {
	requested int
}

func (r *fakeRebooter) Reboot(context.Context) error {
	r.requested++
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// testServer serves a manifest plus two artifact payloads over httptest.
type testServer struct {
	*httptest.Server

	manifest     Manifest
	bootPayload  []byte
	rootPayload  []byte
	lastVersion  string
	lastSlot     string
	manifestHits int
}

func newTestServer(t *testing.T, version string, corruptRootfs bool) *testServer {
	t.Helper()

	ts := &testServer{
		bootPayload: []byte("boot archive payload"),
		rootPayload: []byte("rootfs archive payload"),
	}

	m := http.NewServeMux()
	m.HandleFunc("/api/v1/devices/dev-1/update", func(w http.ResponseWriter, r *http.Request) {
		ts.manifestHits++
		ts.lastVersion = r.Header.Get("X-Current-Version")
		ts.lastSlot = r.Header.Get("X-Current-Slot")
		json.NewEncoder(w).Encode(ts.manifest)
	})
	m.HandleFunc("/artifacts/boot.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(ts.bootPayload)
	})
	m.HandleFunc("/artifacts/rootfs.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(ts.rootPayload)
	})

	ts.Server = httptest.NewServer(m)
	t.Cleanup(ts.Close)

	rootfsSum := sha256Hex(ts.rootPayload)
	if corruptRootfs {
		rootfsSum = sha256Hex([]byte("something else entirely"))
	}

	ts.manifest = Manifest{
		UpdateAvailable: true,
		Version:         version,
		Artifacts: []Artifact{
			{
				Name:   "boot.tar.gz",
				URL:    ts.URL + "/artifacts/boot.tar.gz",
				SHA256: sha256Hex(ts.bootPayload),
				Size:   int64(len(ts.bootPayload)),
			},
			{
				Name:   "rootfs.tar.gz",
				URL:    ts.URL + "/artifacts/rootfs.tar.gz",
				SHA256: rootfsSum,
				Size:   int64(len(ts.rootPayload)),
			},
		},
	}
	return ts
}

type harness struct {
	agent *Agent
	store *bootstate.Store
	prov  *fakeProvisioner
	ext   *fakeExtractor
	reb   *fakeRebooter
	mount string
}

func newHarness(t *testing.T, serverURL string) *harness {
	t.Helper()

	store := bootstate.New(filepath.Join(t.TempDir(), "bootstate"))
	if _, err := store.Provision(3); err != nil {
		t.Fatalf("provision store: %v", err)
	}
	// Simulate a confirmed 1.0.0 boot on slot A.
	st, err := store.Read()
	if err != nil {
		t.Fatal(err)
	}
	st.ConfirmedVersion = "1.0.0"
	if err := store.Write(st); err != nil {
		t.Fatal(err)
	}

	prov := &fakeProvisioner{}
	ext := &fakeExtractor{}
	reb := &fakeRebooter{}
	mount := t.TempDir()

	layout := slot.Layout{
		slot.A: {ID: slot.A, BootDev: "/dev/mmcblk0p1", RootDev: "/dev/mmcblk0p2"},
		slot.B: {ID: slot.B, BootDev: "/dev/mmcblk0p3", RootDev: "/dev/mmcblk0p5"},
	}

	a, err := New(Config{
		Store:        store,
		Layout:       layout,
		Manifest:     NewManifestClient(serverURL, "dev-1", 5*time.Second),
		Fetcher:      NewHTTPFetcher(5*time.Second, 1),
		Installer:    NewInstaller(prov, ext, mount),
		Rebooter:     reb,
		ScratchDir:   t.TempDir(),
		PollInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{agent: a, store: store, prov: prov, ext: ext, reb: reb, mount: mount}
}

func TestCycleInstallsAndStagesSwitch(t *testing.T) {
	srv := newTestServer(t, "1.1.0", false)
	h := newHarness(t, srv.URL)

	h.agent.runCycle(context.Background())

	if srv.lastVersion != "1.0.0" || srv.lastSlot != "A" {
		t.Fatalf("manifest request headers: version=%q slot=%q", srv.lastVersion, srv.lastSlot)
	}

	// Standby slot B was formatted and both archives extracted.
	if len(h.prov.formatted) != 1 || h.prov.formatted[0] != "/dev/mmcblk0p5:ROOT_B" {
		t.Fatalf("formatted = %v", h.prov.formatted)
	}
	if len(h.ext.extracted) != 2 {
		t.Fatalf("extracted = %v", h.ext.extracted)
	}

	// Fast-boot bundle regenerated for the standby slot.
	b, err := fastboot.LoadBundle(h.mount)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if b.Version != "1.1.0" {
		t.Fatalf("bundle version = %q", b.Version)
	}

	// Switch staged, active slot untouched.
	st, err := h.store.Read()
	if err != nil {
		t.Fatal(err)
	}
	if st.ActiveSlot != slot.A {
		t.Fatalf("active slot changed to %s", st.ActiveSlot)
	}
	if st.PendingSwitch != slot.B || st.PendingVersion != "1.1.0" {
		t.Fatalf("pending switch = %q version = %q", st.PendingSwitch, st.PendingVersion)
	}
	if h.reb.requested != 1 {
		t.Fatalf("reboot requested %d times", h.reb.requested)
	}

	status := h.agent.Status()
	if status.State != StateIdle || status.LastError != "" {
		t.Fatalf("status after success: %+v", status)
	}
}

func TestCycleDigestMismatchLeavesSlotUntouched(t *testing.T) {
	srv := newTestServer(t, "1.1.0", true)
	h := newHarness(t, srv.URL)

	h.agent.runCycle(context.Background())

	if len(h.prov.formatted) != 0 || len(h.ext.extracted) != 0 {
		t.Fatalf("standby slot touched: formats=%v extracts=%v", h.prov.formatted, h.ext.extracted)
	}
	st, err := h.store.Read()
	if err != nil {
		t.Fatal(err)
	}
	if st.PendingSwitch != "" || st.PendingVersion != "" {
		t.Fatalf("switch staged despite bad digest: %+v", st)
	}

	status := h.agent.Status()
	if status.State != StateIdle {
		t.Fatalf("state = %q, want Idle", status.State)
	}
	if KindOf(nil) != "" {
		t.Fatal("KindOf(nil) should be empty")
	}
	if want := string(ErrIntegrity); len(status.LastError) == 0 || status.LastError[:len(want)] != want {
		t.Fatalf("last error = %q, want %s prefix", status.LastError, want)
	}
}

func TestCycleNoUpdateIsNoOp(t *testing.T) {
	srv := newTestServer(t, "1.1.0", false)
	srv.manifest = Manifest{UpdateAvailable: false}
	h := newHarness(t, srv.URL)

	before, _ := h.store.Read()
	h.agent.runCycle(context.Background())
	after, _ := h.store.Read()

	if before != after {
		t.Fatalf("state changed on no-update: %+v -> %+v", before, after)
	}
	if h.reb.requested != 0 {
		t.Fatal("reboot requested on no-update")
	}
}

func TestCycleAlreadyOnVersionIsNoOp(t *testing.T) {
	srv := newTestServer(t, "1.0.0", false)
	h := newHarness(t, srv.URL)

	h.agent.runCycle(context.Background())

	if len(h.ext.extracted) != 0 {
		t.Fatal("installed an update the device already runs")
	}
	st, _ := h.store.Read()
	if st.PendingSwitch != "" {
		t.Fatal("switch staged for current version")
	}
}

func TestCycleBelowMinVersionSkipped(t *testing.T) {
	srv := newTestServer(t, "2.0.0", false)
	srv.manifest.MinVersion = "1.5.0"
	h := newHarness(t, srv.URL)

	h.agent.runCycle(context.Background())

	if len(h.ext.extracted) != 0 {
		t.Fatal("installed an update below its min_version gate")
	}
}

func TestCycleFormatFailureReportsStorageError(t *testing.T) {
	srv := newTestServer(t, "1.1.0", false)
	h := newHarness(t, srv.URL)
	h.prov.formatErr = os.ErrPermission

	h.agent.runCycle(context.Background())

	status := h.agent.Status()
	if want := string(ErrStorage); len(status.LastError) < len(want) || status.LastError[:len(want)] != want {
		t.Fatalf("last error = %q, want %s prefix", status.LastError, want)
	}
	st, _ := h.store.Read()
	if st.PendingSwitch != "" {
		t.Fatal("switch staged after storage failure")
	}
}

func TestForceRollbackFlipsSlot(t *testing.T) {
	srv := newTestServer(t, "1.1.0", false)
	h := newHarness(t, srv.URL)

	status, err := h.agent.ForceRollback()
	if err != nil {
		t.Fatalf("ForceRollback: %v", err)
	}
	if status.ActiveSlot != "B" {
		t.Fatalf("active slot = %q, want B", status.ActiveSlot)
	}

	st, _ := h.store.Read()
	if st.ActiveSlot != slot.B || st.AttemptCount != 0 {
		t.Fatalf("persisted state after rollback: %+v", st)
	}
}

func TestBothFailedGaugeTracksStore(t *testing.T) {
	srv := newTestServer(t, "1.1.0", false)
	h := newHarness(t, srv.URL)

	if got := testutil.ToFloat64(metrics.BothFailed); got != 0 {
		t.Fatalf("gauge = %v with flag clear", got)
	}

	st, err := h.store.Read()
	if err != nil {
		t.Fatal(err)
	}
	st.BothFailed = true
	if err := h.store.Write(st); err != nil {
		t.Fatal(err)
	}

	status := h.agent.Status()
	if !status.BothFailed {
		t.Fatal("status does not report the raised flag")
	}
	if got := testutil.ToFloat64(metrics.BothFailed); got != 1 {
		t.Fatalf("gauge = %v with flag raised", got)
	}

	st.BothFailed = false
	if err := h.store.Write(st); err != nil {
		t.Fatal(err)
	}
	h.agent.Status()
	if got := testutil.ToFloat64(metrics.BothFailed); got != 0 {
		t.Fatalf("gauge = %v after flag cleared", got)
	}
}

func TestForceCheckQueuesOnce(t *testing.T) {
	srv := newTestServer(t, "1.1.0", false)
	h := newHarness(t, srv.URL)

	if !h.agent.ForceCheck() {
		t.Fatal("first ForceCheck rejected")
	}
	if h.agent.ForceCheck() {
		t.Fatal("second ForceCheck accepted while one is pending")
	}
}

func TestTriggerWatcherConsumesMarker(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "check-now")

	w := NewTriggerWatcher(marker)
	checkNow := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, checkNow) }()

	// Give the watcher a moment to arm before touching the marker.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-checkNow:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger not delivered")
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("marker not consumed: %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watcher exit: %v", err)
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.4.0", "1.10.0", -1},
		{"2.0", "1.9.9", 1},
		{"1.0", "1.0.1", -1},
		{"1.0.0-rc1", "1.0.0-rc2", -1},
	}
	for _, tc := range cases {
		if got := compareVersions(tc.a, tc.b); got != tc.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
