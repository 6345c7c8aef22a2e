package options

import (
	"errors"

	"github.com/fotad-io/fotad/internal/daemon"
	"github.com/fotad-io/fotad/pkg/app"
	"github.com/fotad-io/fotad/pkg/log"
	"github.com/fotad-io/fotad/pkg/options"
)

type DaemonOptions struct {
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	ManifestOptions *options.ManifestOptions `json:"manifest" mapstructure:"manifest"`
	StoreOptions    *options.StoreOptions    `json:"store" mapstructure:"store"`
	SlotOptions     *options.SlotOptions     `json:"slot" mapstructure:"slot"`
	AgentOptions    *options.AgentOptions    `json:"agent" mapstructure:"agent"`
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	S3Options       *options.S3Options       `json:"s3" mapstructure:"s3"`
	Log             *log.Options             `json:"log" mapstructure:"log"`
}

var _ app.CliOptions = (*DaemonOptions)(nil)

func NewDaemonOptions() *DaemonOptions {
	return &DaemonOptions{
		HttpOptions:     options.NewHttpOptions(),
		ManifestOptions: options.NewManifestOptions(),
		StoreOptions:    options.NewStoreOptions(),
		SlotOptions:     options.NewSlotOptions(),
		AgentOptions:    options.NewAgentOptions(),
		MqttOptions:     options.NewMqttOptions(),
		S3Options:       options.NewS3Options(),
		Log:             log.NewOptions(),
	}
}

func (o *DaemonOptions) Flags() app.NamedFlagSets {
	fss := app.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"), "http")
	o.ManifestOptions.AddFlags(fss.FlagSet("manifest"), "manifest")
	o.StoreOptions.AddFlags(fss.FlagSet("store"), "store")
	o.SlotOptions.AddFlags(fss.FlagSet("slot"), "slot")
	o.AgentOptions.AddFlags(fss.FlagSet("agent"), "agent")
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"), "mqtt")
	o.S3Options.AddFlags(fss.FlagSet("s3"), "s3")
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *DaemonOptions) Complete() error {
	return nil
}

func (o *DaemonOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.ManifestOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.SlotOptions.Validate()...)
	errs = append(errs, o.AgentOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errors.Join(errs...)
}

func (o *DaemonOptions) Config() (*daemon.Config, error) {
	return &daemon.Config{
		HttpOptions:     o.HttpOptions,
		ManifestOptions: o.ManifestOptions,
		StoreOptions:    o.StoreOptions,
		SlotOptions:     o.SlotOptions,
		AgentOptions:    o.AgentOptions,
		MqttOptions:     o.MqttOptions,
		S3Options:       o.S3Options,
	}, nil
}
