package options

import (
	"errors"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ManifestOptions)(nil)

// ManifestOptions configures how the update agent talks to the manifest
// endpoint of the update server.
type ManifestOptions struct {
	// ServerURL is the base URL of the update server.
	ServerURL string `json:"server-url" mapstructure:"server-url"`

	// DeviceID identifies this device towards the update server.
	DeviceID string `json:"device-id" mapstructure:"device-id"`

	// PollInterval is the time between periodic update checks.
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`

	// Timeout bounds a single manifest fetch.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// DownloadTimeout bounds a single artifact download.
	DownloadTimeout time.Duration `json:"download-timeout" mapstructure:"download-timeout"`

	// Retries is the number of additional attempts for transport failures.
	Retries int `json:"retries" mapstructure:"retries"`
}

// NewManifestOptions creates a ManifestOptions object with default parameters.
func NewManifestOptions() *ManifestOptions {
	return &ManifestOptions{
		PollInterval:    time.Hour,
		Timeout:         30 * time.Second,
		DownloadTimeout: 10 * time.Minute,
		Retries:         2,
	}
}

func (o *ManifestOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.ServerURL == "" {
		errs = append(errs, errors.New("manifest.server-url is required"))
	} else if _, err := url.Parse(o.ServerURL); err != nil {
		errs = append(errs, err)
	}

	if o.DeviceID == "" {
		errs = append(errs, errors.New("manifest.device-id is required"))
	}

	if o.PollInterval <= 0 {
		errs = append(errs, errors.New("manifest.poll-interval must be positive"))
	}

	if o.Retries < 0 {
		errs = append(errs, errors.New("manifest.retries must not be negative"))
	}

	return errs
}

// AddFlags adds flags for ManifestOptions to the specified FlagSet.
func (o *ManifestOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ServerURL, "manifest.server-url", o.ServerURL, "Base URL of the update server.")
	fs.StringVar(&o.DeviceID, "manifest.device-id", o.DeviceID, "Unique device identifier reported to the update server.")
	fs.DurationVar(&o.PollInterval, "manifest.poll-interval", o.PollInterval, "Interval between periodic update checks.")
	fs.DurationVar(&o.Timeout, "manifest.timeout", o.Timeout, "Timeout for a single manifest fetch.")
	fs.DurationVar(&o.DownloadTimeout, "manifest.download-timeout", o.DownloadTimeout, "Timeout for a single artifact download.")
	fs.IntVar(&o.Retries, "manifest.retries", o.Retries, "Retry count for transport failures (downloads and manifest fetches).")
}
