package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fotad-io/fotad/internal/fastboot"
	"github.com/fotad-io/fotad/internal/slot"
	"github.com/fotad-io/fotad/pkg/log"
)

const (
	roleBoot   = "boot"
	roleRootfs = "rootfs"
)

// artifactRole maps an artifact to the slot area it overwrites, by name
// prefix ("boot.tar.gz", "rootfs-1.4.0.tar.gz", ...).
func artifactRole(a Artifact) string {
	name := filepath.Base(a.Name)
	switch {
	case strings.HasPrefix(name, roleRootfs):
		return roleRootfs
	case strings.HasPrefix(name, roleBoot):
		return roleBoot
	default:
		return ""
	}
}

// Installer wholesale-overwrites the standby slot from verified archives.
// It is the only writer of slot contents; nothing here touches the active
// slot or the boot state record.
type Installer struct {
	Provisioner slot.Provisioner
	Extractor   slot.Extractor
	MountDir    string

	logger log.Logger
}

func NewInstaller(p slot.Provisioner, e slot.Extractor, mountDir string) *Installer {
	return &Installer{
		Provisioner: p,
		Extractor:   e,
		MountDir:    mountDir,
		logger:      log.WithName("install"),
	}
}

// Install flashes both areas of the standby region. bootArchive and
// rootfsArchive are paths to already-verified files in the scratch area.
// The boot area keeps its factory filesystem (it is what the ROM boots
// from) and is cleared and repopulated; the root area is reformatted.
// Any failure is a storage error and leaves the slot untrusted until the
// next complete cycle.
func (ins *Installer) Install(ctx context.Context, region slot.Region, bootArchive, rootfsArchive string) error {
	if err := os.MkdirAll(ins.MountDir, 0o755); err != nil {
		return storageErr("create mount dir: %w", err)
	}

	ins.logger.Info("Flashing boot area", "slot", region.ID, "dev", region.BootDev)
	if err := ins.overwriteMounted(ctx, region.BootDev, bootArchive); err != nil {
		return err
	}

	ins.logger.Info("Formatting and flashing root area", "slot", region.ID, "dev", region.RootDev)
	if err := ins.Provisioner.Format(ctx, region.RootDev, "ROOT_"+region.ID.Label()); err != nil {
		return storageErr("format %s: %w", region.RootDev, err)
	}
	if err := ins.extractInto(ctx, region.RootDev, rootfsArchive, false); err != nil {
		return err
	}
	return nil
}

// WriteBootArgs regenerates the slot's fast-boot bundle inside its boot
// area. Called after a successful install, with the kernel files already
// in place.
func (ins *Installer) WriteBootArgs(ctx context.Context, region slot.Region, b *fastboot.Bundle) error {
	if err := ins.Provisioner.Mount(ctx, region.BootDev, ins.MountDir); err != nil {
		return storageErr("mount %s: %w", region.BootDev, err)
	}
	defer func() {
		if err := ins.Provisioner.Unmount(ctx, ins.MountDir); err != nil {
			ins.logger.Error(err, "Failed to unmount slot area", "dir", ins.MountDir)
		}
	}()

	if err := fastboot.WriteBundle(ins.MountDir, b); err != nil {
		return storageErr("write boot args for slot %s: %w", region.ID, err)
	}
	return nil
}

// overwriteMounted mounts dev, removes its previous contents, and extracts
// the archive into it.
func (ins *Installer) overwriteMounted(ctx context.Context, dev, archive string) error {
	return ins.extractInto(ctx, dev, archive, true)
}

func (ins *Installer) extractInto(ctx context.Context, dev, archive string, clearFirst bool) error {
	if err := ins.Provisioner.Mount(ctx, dev, ins.MountDir); err != nil {
		return storageErr("mount %s: %w", dev, err)
	}
	// Unmount even on failure; a stale mount would wedge the next cycle.
	defer func() {
		if err := ins.Provisioner.Unmount(ctx, ins.MountDir); err != nil {
			ins.logger.Error(err, "Failed to unmount slot area", "dir", ins.MountDir)
		}
	}()

	if clearFirst {
		if err := clearDir(ins.MountDir); err != nil {
			return storageErr("clear %s: %w", dev, err)
		}
	}
	if err := ins.Extractor.Extract(ctx, archive, ins.MountDir); err != nil {
		return storageErr("extract %s into %s: %w", filepath.Base(archive), dev, err)
	}
	return nil
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
