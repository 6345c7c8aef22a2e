// Package fastboot implements the direct-to-kernel boot path. For the
// selected slot it loads a pre-generated kernel and argument bundle and
// transfers control immediately, skipping the full bootloader's
// general-purpose initialization. A sampled hardware input and any bundle
// problem both force the full bootloader instead.
package fastboot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BundleName is the file name of the argument bundle inside a slot's boot
// area. The update agent regenerates it after every successful install; its
// absence forces the full bootloader path.
const BundleName = "bootargs.json"

// Bundle is the per-slot fast-boot argument bundle: everything needed to
// load the slot's kernel without consulting the full bootloader.
type Bundle struct {
	// Version of the firmware the bundle was generated for.
	Version string `json:"version"`

	// Kernel is the kernel image path inside the slot's boot area.
	Kernel string `json:"kernel"`

	// Initrd is optional.
	Initrd string `json:"initrd,omitempty"`

	// DeviceTree is optional.
	DeviceTree string `json:"dt,omitempty"`

	// CommandLine is the full kernel command line, including the slot's
	// root= parameter.
	CommandLine string `json:"commandline"`
}

// LoadBundle reads and validates the bundle in bootDir. Any problem —
// missing file, unparseable content, missing referenced images — is an
// error; the caller falls back to the full bootloader rather than booting
// with stale or missing arguments.
func LoadBundle(bootDir string) (*Bundle, error) {
	raw, err := os.ReadFile(filepath.Join(bootDir, BundleName))
	if err != nil {
		return nil, fmt.Errorf("argument bundle unavailable: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("argument bundle invalid: %w", err)
	}

	if err := b.validate(bootDir); err != nil {
		return nil, err
	}
	return &b, nil
}

// WriteBundle atomically writes the bundle into bootDir.
func WriteBundle(bootDir string, b *Bundle) error {
	if err := b.validate(bootDir); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}

	tmp := filepath.Join(bootDir, BundleName+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write argument bundle: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(bootDir, BundleName)); err != nil {
		return fmt.Errorf("failed to commit argument bundle: %w", err)
	}
	return nil
}

func (b *Bundle) validate(bootDir string) error {
	if b.Kernel == "" {
		return fmt.Errorf("argument bundle names no kernel")
	}
	if b.CommandLine == "" {
		return fmt.Errorf("argument bundle has an empty command line")
	}

	for _, rel := range []string{b.Kernel, b.Initrd, b.DeviceTree} {
		if rel == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(bootDir, rel)); err != nil {
			return fmt.Errorf("argument bundle references missing image %s: %w", rel, err)
		}
	}
	return nil
}

// KernelPath resolves the kernel image relative to the boot area.
func (b *Bundle) KernelPath(bootDir string) string {
	return filepath.Join(bootDir, b.Kernel)
}
