package options

import (
	"errors"

	"github.com/fotad-io/fotad/pkg/app"
	"github.com/fotad-io/fotad/pkg/log"
	"github.com/fotad-io/fotad/pkg/options"
	"github.com/spf13/pflag"
)

type SelectorOptions struct {
	StoreOptions *options.StoreOptions `json:"store" mapstructure:"store"`
	SlotOptions  *options.SlotOptions  `json:"slot" mapstructure:"slot"`
	Log          *log.Options          `json:"log" mapstructure:"log"`

	// BootDirA/B are where the slots' boot areas are mounted in the
	// pre-OS environment.
	BootDirA string `json:"boot-dir-a" mapstructure:"boot-dir-a"`
	BootDirB string `json:"boot-dir-b" mapstructure:"boot-dir-b"`

	// RecoveryGPIO is the sysfs line of the recovery button; negative
	// disables the escape hatch (boards without one).
	RecoveryGPIO int `json:"recovery-gpio" mapstructure:"recovery-gpio"`

	// FallbackCommand hands control back to the full bootloader chain.
	FallbackCommand string `json:"fallback-command" mapstructure:"fallback-command"`

	// DryRun selects and persists but does not exec a kernel; for
	// provisioning-time validation.
	DryRun bool `json:"dry-run" mapstructure:"dry-run"`
}

var _ app.CliOptions = (*SelectorOptions)(nil)

func NewSelectorOptions() *SelectorOptions {
	return &SelectorOptions{
		StoreOptions:    options.NewStoreOptions(),
		SlotOptions:     options.NewSlotOptions(),
		Log:             log.NewOptions(),
		BootDirA:        "/mnt/boot_a",
		BootDirB:        "/mnt/boot_b",
		RecoveryGPIO:    72,
		FallbackCommand: "/usr/libexec/fota/full-bootloader",
	}
}

func (o *SelectorOptions) Flags() app.NamedFlagSets {
	fss := app.NamedFlagSets{}
	o.StoreOptions.AddFlags(fss.FlagSet("store"), "store")
	o.SlotOptions.AddFlags(fss.FlagSet("slot"), "slot")
	o.addSelectorFlags(fss.FlagSet("selector"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *SelectorOptions) addSelectorFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.BootDirA, "selector.boot-dir-a", o.BootDirA, "Mount point of slot A's boot area.")
	fs.StringVar(&o.BootDirB, "selector.boot-dir-b", o.BootDirB, "Mount point of slot B's boot area.")
	fs.IntVar(&o.RecoveryGPIO, "selector.recovery-gpio", o.RecoveryGPIO, "Sysfs GPIO line of the recovery button; negative disables it.")
	fs.StringVar(&o.FallbackCommand, "selector.fallback-command", o.FallbackCommand, "Command invoking the full bootloader chain.")
	fs.BoolVar(&o.DryRun, "selector.dry-run", o.DryRun, "Select and persist without loading a kernel.")
}

func (o *SelectorOptions) Complete() error {
	return nil
}

func (o *SelectorOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.SlotOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if o.BootDirA == "" || o.BootDirB == "" {
		errs = append(errs, errors.New("selector.boot-dir-a and selector.boot-dir-b are required"))
	}
	return errors.Join(errs...)
}
