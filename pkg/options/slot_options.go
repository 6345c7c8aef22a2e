package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/fotad-io/fotad/internal/slot"
)

var _ IOptions = (*SlotOptions)(nil)

// SlotOptions describes the fixed A/B partition layout. Defaults match the
// BeagleBone Black reference layout (boot A/B on p1/p3, root A/B on p2/p5).
type SlotOptions struct {
	BootDevA string `json:"boot-dev-a" mapstructure:"boot-dev-a"`
	RootDevA string `json:"root-dev-a" mapstructure:"root-dev-a"`
	BootDevB string `json:"boot-dev-b" mapstructure:"boot-dev-b"`
	RootDevB string `json:"root-dev-b" mapstructure:"root-dev-b"`

	// MountDir is the base directory under which slot regions are
	// temporarily mounted during install and bundle generation.
	MountDir string `json:"mount-dir" mapstructure:"mount-dir"`

	// ScratchDir receives artifact downloads before verification.
	ScratchDir string `json:"scratch-dir" mapstructure:"scratch-dir"`

	// KernelImage is the kernel file name recorded in regenerated
	// fast-boot bundles.
	KernelImage string `json:"kernel-image" mapstructure:"kernel-image"`

	// BaseCmdline is the kernel command line recorded in regenerated
	// fast-boot bundles; the agent appends the slot's root device.
	BaseCmdline string `json:"base-cmdline" mapstructure:"base-cmdline"`
}

func NewSlotOptions() *SlotOptions {
	return &SlotOptions{
		BootDevA:    "/dev/mmcblk0p1",
		RootDevA:    "/dev/mmcblk0p2",
		BootDevB:    "/dev/mmcblk0p3",
		RootDevB:    "/dev/mmcblk0p5",
		MountDir:    "/run/fotad/mnt",
		ScratchDir:  "/run/fotad/download",
		KernelImage: "zImage",
		BaseCmdline: "console=ttyO0,115200n8 ro rootwait",
	}
}

func (o *SlotOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	for _, dev := range []string{o.BootDevA, o.RootDevA, o.BootDevB, o.RootDevB} {
		if dev == "" {
			errs = append(errs, errors.New("all four slot devices must be configured"))
			break
		}
	}

	if o.MountDir == "" {
		errs = append(errs, errors.New("slot.mount-dir is required"))
	}

	if o.ScratchDir == "" {
		errs = append(errs, errors.New("slot.scratch-dir is required"))
	}

	if o.KernelImage == "" {
		errs = append(errs, errors.New("slot.kernel-image is required"))
	}

	return errs
}

func (o *SlotOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BootDevA, "slot.boot-dev-a", o.BootDevA, "Block device of slot A's boot area.")
	fs.StringVar(&o.RootDevA, "slot.root-dev-a", o.RootDevA, "Block device of slot A's root area.")
	fs.StringVar(&o.BootDevB, "slot.boot-dev-b", o.BootDevB, "Block device of slot B's boot area.")
	fs.StringVar(&o.RootDevB, "slot.root-dev-b", o.RootDevB, "Block device of slot B's root area.")
	fs.StringVar(&o.MountDir, "slot.mount-dir", o.MountDir, "Base directory for temporary slot mounts.")
	fs.StringVar(&o.ScratchDir, "slot.scratch-dir", o.ScratchDir, "Scratch directory for artifact downloads.")
	fs.StringVar(&o.KernelImage, "slot.kernel-image", o.KernelImage, "Kernel file name written into regenerated fast-boot bundles.")
	fs.StringVar(&o.BaseCmdline, "slot.base-cmdline", o.BaseCmdline, "Kernel command line for regenerated bundles; the slot's root device is appended.")
}

// ToLayout converts the options into the slot layout used by the agent and
// the boot path.
func (o *SlotOptions) ToLayout() slot.Layout {
	return slot.Layout{
		slot.A: {
			ID:      slot.A,
			BootDev: o.BootDevA,
			RootDev: o.RootDevA,
		},
		slot.B: {
			ID:      slot.B,
			BootDev: o.BootDevB,
			RootDev: o.RootDevB,
		},
	}
}
