package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*AgentOptions)(nil)

// AgentOptions tunes update agent behavior that is neither transport nor
// storage layout.
type AgentOptions struct {
	// TriggerFile is a marker file whose creation forces an immediate
	// update check outside the poll interval.
	TriggerFile string `json:"trigger-file" mapstructure:"trigger-file"`
}

func NewAgentOptions() *AgentOptions {
	return &AgentOptions{
		TriggerFile: "/run/fotad/check-now",
	}
}

func (o *AgentOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.TriggerFile == "" {
		errs = append(errs, errors.New("agent.trigger-file is required"))
	}

	return errs
}

func (o *AgentOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.TriggerFile, "agent.trigger-file", o.TriggerFile, "Marker file that forces an immediate update check when created.")
}
