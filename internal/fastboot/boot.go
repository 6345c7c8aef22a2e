package fastboot

import (
	"context"
	"fmt"

	"github.com/fotad-io/fotad/internal/slot"
	"github.com/fotad-io/fotad/pkg/log"
)

// RecoveryInput samples the hardware escape hatch (typically a held button
// on a GPIO line). It is checked unconditionally before any boot decision,
// even when the boot state is corrupt.
type RecoveryInput interface {
	Pressed() (bool, error)
}

// KernelLoader transfers control to the kernel described by the bundle. On
// success it does not return.
type KernelLoader interface {
	Boot(ctx context.Context, bootDir string, b *Bundle) error
}

// Fallback invokes the full, general-purpose bootloader.
type Fallback interface {
	Boot(ctx context.Context) error
}

// BootDirFunc resolves the directory where a slot's boot area is accessible
// (in the pre-OS environment the boot partitions are mounted read-only by
// the early init).
type BootDirFunc func(id slot.ID) string

// Booter glues the pieces of the fast boot path together.
type Booter struct {
	BootDir  BootDirFunc
	Recovery RecoveryInput
	Loader   KernelLoader
	Fallback Fallback

	logger log.Logger
}

func NewBooter(bootDir BootDirFunc, recovery RecoveryInput, loader KernelLoader, fallback Fallback) *Booter {
	return &Booter{
		BootDir:  bootDir,
		Recovery: recovery,
		Loader:   loader,
		Fallback: fallback,
		logger:   log.WithName("fastboot"),
	}
}

// Boot attempts the direct kernel boot for the selected slot. The recovery
// input wins over everything; after that, any bundle or loader problem
// falls back to the full bootloader rather than halting.
func (bt *Booter) Boot(ctx context.Context, selected slot.ID) error {
	pressed, err := bt.Recovery.Pressed()
	if err != nil {
		// An unreadable recovery input is treated as pressed: the safe
		// direction is always the full bootloader.
		bt.logger.Error(err, "Recovery input unreadable, forcing full bootloader")
		pressed = true
	}
	if pressed {
		bt.logger.Info("Recovery input active, starting full bootloader")
		return bt.Fallback.Boot(ctx)
	}

	bootDir := bt.BootDir(selected)
	bundle, err := LoadBundle(bootDir)
	if err != nil {
		bt.logger.Warn("Fast boot unavailable, starting full bootloader",
			"slot", selected, "reason", err.Error())
		return bt.Fallback.Boot(ctx)
	}

	bt.logger.Info("Fast booting",
		"slot", selected,
		"version", bundle.Version,
		"kernel", bundle.Kernel)

	if err := bt.Loader.Boot(ctx, bootDir, bundle); err != nil {
		bt.logger.Error(err, "Kernel handoff failed, starting full bootloader", "slot", selected)
		return bt.Fallback.Boot(ctx)
	}

	// Unreachable on real hardware; loaders only return on failure.
	return nil
}

// ErrFallbackUnavailable indicates that even the fallback path could not be
// started. The caller can do nothing but report it.
var ErrFallbackUnavailable = fmt.Errorf("full bootloader unavailable")
