package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

// StoreOptions locates the persistent boot state record. The path must live
// outside both slots so that it survives a slot wipe; on real hardware it is
// a file on the persistent data partition or a raw region exposed by the
// bootloader environment.
type StoreOptions struct {
	// Path to the boot state record.
	Path string `json:"path" mapstructure:"path"`

	// AttemptLimit is the default boot attempt limit written when the
	// record is first provisioned.
	AttemptLimit uint32 `json:"attempt-limit" mapstructure:"attempt-limit"`
}

func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Path:         "/data/fota/bootstate",
		AttemptLimit: 3,
	}
}

func (o *StoreOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	if o.AttemptLimit == 0 {
		errs = append(errs, errors.New("store.attempt-limit must be positive"))
	}

	return errs
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, "store.path", o.Path, "Path of the persistent boot state record.")
	fs.Uint32Var(&o.AttemptLimit, "store.attempt-limit", o.AttemptLimit, "Boot attempt limit used when provisioning a fresh record.")
}
