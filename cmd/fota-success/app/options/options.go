package options

import (
	"errors"
	"time"

	"github.com/fotad-io/fotad/pkg/app"
	"github.com/fotad-io/fotad/pkg/log"
	"github.com/fotad-io/fotad/pkg/options"
	"github.com/spf13/pflag"
)

type SuccessOptions struct {
	StoreOptions *options.StoreOptions `json:"store" mapstructure:"store"`
	Log          *log.Options          `json:"log" mapstructure:"log"`

	// Settle is waited out before marking the boot successful, so a
	// crash-looping system never confirms itself.
	Settle time.Duration `json:"settle" mapstructure:"settle"`

	// ReadyFile, when set, must exist before marking; its appearance is
	// awaited up to ReadyTimeout. Used when the application signals its
	// own readiness.
	ReadyFile    string        `json:"ready-file" mapstructure:"ready-file"`
	ReadyTimeout time.Duration `json:"ready-timeout" mapstructure:"ready-timeout"`
}

var _ app.CliOptions = (*SuccessOptions)(nil)

func NewSuccessOptions() *SuccessOptions {
	return &SuccessOptions{
		StoreOptions: options.NewStoreOptions(),
		Log:          log.NewOptions(),
		Settle:       30 * time.Second,
		ReadyTimeout: 5 * time.Minute,
	}
}

func (o *SuccessOptions) Flags() app.NamedFlagSets {
	fss := app.NamedFlagSets{}
	o.StoreOptions.AddFlags(fss.FlagSet("store"), "store")
	o.addSuccessFlags(fss.FlagSet("success"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *SuccessOptions) addSuccessFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.Settle, "success.settle", o.Settle, "Delay before the boot is confirmed.")
	fs.StringVar(&o.ReadyFile, "success.ready-file", o.ReadyFile, "File whose presence gates the confirmation; empty to gate on the settle delay alone.")
	fs.DurationVar(&o.ReadyTimeout, "success.ready-timeout", o.ReadyTimeout, "How long to wait for the ready file to appear.")
}

func (o *SuccessOptions) Complete() error {
	return nil
}

func (o *SuccessOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if o.Settle < 0 {
		errs = append(errs, errors.New("success.settle must not be negative"))
	}
	return errors.Join(errs...)
}
