// Copyright 2026 The Fotad Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RunFunc defines the application's startup callback function.
type RunFunc func() error

// CliOptions is implemented by an application's aggregated option struct.
type CliOptions interface {
	// Flags returns the grouped flag sets of the application.
	Flags() NamedFlagSets

	// Complete fills in any fields not set explicitly but required.
	Complete() error

	// Validate checks all option values.
	Validate() error
}

// App encapsulates a cobra command with grouped flags, optional config file
// loading and a run callback.
type App struct {
	name        string
	brief       string
	description string
	options     CliOptions
	run         RunFunc
	noConfig    bool

	cmd *cobra.Command
}

// Option configures an App during construction.
type Option func(*App)

// WithDescription sets the long description of the application.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions attaches the application's option struct; its flag sets are
// registered on the command line and filled from the config file.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the application startup callback.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.run = run
	}
}

// WithNoConfig disables the --config flag, for small one-shot tools.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// NewApp creates an application instance based on the given name, brief
// description and options.
func NewApp(name, brief string, opts ...Option) *App {
	a := &App{
		name:  name,
		brief: brief,
	}

	for _, o := range opts {
		o(a)
	}

	a.buildCommand()
	return a
}

// Command returns the underlying cobra command, letting callers attach
// subcommands.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.name, err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.brief,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}

	var cfgFile string
	if !a.noConfig {
		cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to the configuration file (YAML).")
	}

	var fss NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
		for _, name := range fss.Order {
			cmd.Flags().AddFlagSet(fss.Set(name))
		}
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if a.options != nil {
			if cfgFile != "" {
				if err := applyConfigFile(cfgFile, cmd.Flags()); err != nil {
					return err
				}
			}
			if err := a.options.Complete(); err != nil {
				return err
			}
			if err := a.options.Validate(); err != nil {
				return err
			}
		}

		if a.run != nil {
			return a.run()
		}
		return nil
	}

	a.cmd = cmd
}

// NamedFlagSets holds flag sets in registration order so that help output
// groups flags by concern.
type NamedFlagSets struct {
	Order []string
	sets  map[string]*pflag.FlagSet
}

// FlagSet returns the flag set for name, creating it if needed.
func (f *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if f.sets == nil {
		f.sets = map[string]*pflag.FlagSet{}
	}
	if _, ok := f.sets[name]; !ok {
		f.sets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		f.Order = append(f.Order, name)
	}
	return f.sets[name]
}

// Set returns the flag set for name, or nil if it was never created.
func (f *NamedFlagSets) Set(name string) *pflag.FlagSet {
	return f.sets[name]
}
