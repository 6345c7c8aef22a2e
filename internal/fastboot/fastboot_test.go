package fastboot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fotad-io/fotad/internal/slot"
)

func writeTestBundle(t *testing.T, dir string, b *Bundle) {
	t.Helper()
	if b.Kernel != "" {
		if err := os.WriteFile(filepath.Join(dir, b.Kernel), []byte("kernel"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if b.Initrd != "" {
		if err := os.WriteFile(filepath.Join(dir, b.Initrd), []byte("initrd"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := WriteBundle(dir, b); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &Bundle{
		Version:     "1.4.0",
		Kernel:      "zImage",
		Initrd:      "initrd.img",
		CommandLine: "console=ttyO0,115200 root=/dev/mmcblk0p2 ro",
	}
	writeTestBundle(t, dir, in)

	out, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if *out != *in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestLoadBundleErrors(t *testing.T) {
	t.Run("missing bundle", func(t *testing.T) {
		if _, err := LoadBundle(t.TempDir()); err == nil {
			t.Fatal("expected error for missing bundle")
		}
	})

	t.Run("missing kernel file", func(t *testing.T) {
		dir := t.TempDir()
		raw := `{"version":"1.0.0","kernel":"zImage","commandline":"root=/dev/mmcblk0p2"}`
		if err := os.WriteFile(filepath.Join(dir, BundleName), []byte(raw), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadBundle(dir); err == nil {
			t.Fatal("expected error when kernel file is absent")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, BundleName), []byte("{oops"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadBundle(dir); err == nil {
			t.Fatal("expected error for malformed bundle")
		}
	})
}

type fakeRecovery struct {
	pressed bool
	err     error
}

func (f fakeRecovery) Pressed() (bool, error) { return f.pressed, f.err }

type fakeLoader struct {
	called  bool
	bootDir string
	bundle  *Bundle
	err     error
}

func (f *fakeLoader) Boot(_ context.Context, bootDir string, b *Bundle) error {
	f.called = true
	f.bootDir = bootDir
	f.bundle = b
	return f.err
}

type fakeFallback struct {
	called bool
}

func (f *fakeFallback) Boot(context.Context) error {
	f.called = true
	return nil
}

func newTestBooter(t *testing.T, recovery RecoveryInput, loader KernelLoader) (*Booter, string, *fakeFallback) {
	t.Helper()
	dir := t.TempDir()
	fb := &fakeFallback{}
	bt := NewBooter(func(slot.ID) string { return dir }, recovery, loader, fb)
	return bt, dir, fb
}

func TestBooterFastPath(t *testing.T) {
	loader := &fakeLoader{}
	bt, dir, fb := newTestBooter(t, fakeRecovery{}, loader)
	writeTestBundle(t, dir, &Bundle{Version: "1.2.0", Kernel: "zImage", CommandLine: "root=/dev/mmcblk0p2"})

	if err := bt.Boot(context.Background(), slot.A); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if !loader.called {
		t.Fatal("loader not invoked")
	}
	if loader.bundle.Version != "1.2.0" {
		t.Fatalf("loader saw bundle %+v", loader.bundle)
	}
	if fb.called {
		t.Fatal("fallback invoked on healthy fast path")
	}
}

func TestBooterRecoveryWins(t *testing.T) {
	loader := &fakeLoader{}
	bt, dir, fb := newTestBooter(t, fakeRecovery{pressed: true}, loader)
	// Valid bundle present: recovery must win anyway.
	writeTestBundle(t, dir, &Bundle{Version: "1.2.0", Kernel: "zImage", CommandLine: "root=/dev/mmcblk0p2"})

	if err := bt.Boot(context.Background(), slot.A); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if loader.called {
		t.Fatal("loader invoked despite recovery input")
	}
	if !fb.called {
		t.Fatal("fallback not invoked")
	}
}

func TestBooterRecoveryReadErrorForcesFallback(t *testing.T) {
	loader := &fakeLoader{}
	bt, dir, fb := newTestBooter(t, fakeRecovery{err: errors.New("gpio gone")}, loader)
	writeTestBundle(t, dir, &Bundle{Version: "1.2.0", Kernel: "zImage", CommandLine: "root=/dev/mmcblk0p2"})

	if err := bt.Boot(context.Background(), slot.A); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if loader.called || !fb.called {
		t.Fatal("unreadable recovery input must route to fallback")
	}
}

func TestBooterMissingBundleFallsBack(t *testing.T) {
	loader := &fakeLoader{}
	bt, _, fb := newTestBooter(t, fakeRecovery{}, loader)

	if err := bt.Boot(context.Background(), slot.B); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if loader.called {
		t.Fatal("loader invoked without a bundle")
	}
	if !fb.called {
		t.Fatal("fallback not invoked")
	}
}

func TestBooterLoaderFailureFallsBack(t *testing.T) {
	loader := &fakeLoader{err: errors.New("kexec load failed")}
	bt, dir, fb := newTestBooter(t, fakeRecovery{}, loader)
	writeTestBundle(t, dir, &Bundle{Version: "1.2.0", Kernel: "zImage", CommandLine: "root=/dev/mmcblk0p2"})

	if err := bt.Boot(context.Background(), slot.A); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if !loader.called || !fb.called {
		t.Fatal("loader failure must route to fallback")
	}
}

func TestGPIOInput(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		activeLow bool
		pressed   bool
		wantErr   bool
	}{
		{name: "active low pressed", raw: "0\n", activeLow: true, pressed: true},
		{name: "active low released", raw: "1\n", activeLow: true, pressed: false},
		{name: "active high pressed", raw: "1\n", activeLow: false, pressed: true},
		{name: "garbage value", raw: "x\n", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			dir := filepath.Join(root, "gpio72")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(dir, "value"), []byte(tc.raw), 0o644); err != nil {
				t.Fatal(err)
			}
			g := &GPIOInput{Root: root, Line: 72, ActiveLow: tc.activeLow}
			pressed, err := g.Pressed()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Pressed: %v", err)
			}
			if pressed != tc.pressed {
				t.Fatalf("pressed = %v, want %v", pressed, tc.pressed)
			}
		})
	}
}
