package app

import (
	"context"
	"fmt"

	"github.com/fotad-io/fotad/cmd/fota-selector/app/options"
	"github.com/fotad-io/fotad/internal/bootstate"
	"github.com/fotad-io/fotad/internal/fastboot"
	"github.com/fotad-io/fotad/internal/selector"
	"github.com/fotad-io/fotad/internal/slot"
	"github.com/fotad-io/fotad/pkg/app"
	"github.com/fotad-io/fotad/pkg/log"
)

const (
	commandName = "fota-selector"
	commandDesc = `fota-selector runs once per power cycle, before the operating system is
up. It consumes a staged slot switch, enforces the attempt limit with
automatic rollback, picks the slot to boot, and hands off to that slot's
fast-boot kernel bundle. A held recovery button or a missing/invalid
bundle routes to the full bootloader instead.`
)

func NewApp() *app.App {
	opts := options.NewSelectorOptions()
	application := app.NewApp(
		commandName,
		"Select the boot slot and hand off to its kernel",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.SelectorOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Flush()

		ctx := context.Background()

		store := bootstate.New(opts.StoreOptions.Path)
		sel := selector.New(store, opts.StoreOptions.AttemptLimit)

		decision, err := sel.Select()
		if err != nil {
			return fmt.Errorf("slot selection failed: %w", err)
		}
		log.Info("Slot selected",
			"slot", decision.Slot,
			"attempt", decision.State.AttemptCount,
			"rolledBack", decision.RolledBack,
			"switchedTo", decision.SwitchedTo,
			"bothFailed", decision.BothFailed)

		var recovery fastboot.RecoveryInput = fastboot.NoRecovery{}
		if opts.RecoveryGPIO >= 0 {
			recovery = &fastboot.GPIOInput{Line: opts.RecoveryGPIO, ActiveLow: true}
		}

		var loader fastboot.KernelLoader = fastboot.KexecLoader{}
		if opts.DryRun {
			loader = dryRunLoader{}
		}

		booter := fastboot.NewBooter(
			func(id slot.ID) string {
				if id == slot.A {
					return opts.BootDirA
				}
				return opts.BootDirB
			},
			recovery,
			loader,
			fastboot.ExecFallback{Command: opts.FallbackCommand},
		)

		return booter.Boot(ctx, decision.Slot)
	}
}

// dryRunLoader reports what would have been booted.
type dryRunLoader struct{}

func (dryRunLoader) Boot(_ context.Context, bootDir string, b *fastboot.Bundle) error {
	log.Info("Dry run, not loading kernel",
		"kernel", b.KernelPath(bootDir),
		"version", b.Version,
		"cmdline", b.CommandLine)
	return nil
}
