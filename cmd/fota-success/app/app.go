package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fotad-io/fotad/cmd/fota-success/app/options"
	"github.com/fotad-io/fotad/internal/bootstate"
	"github.com/fotad-io/fotad/internal/monitor"
	"github.com/fotad-io/fotad/pkg/app"
	"github.com/fotad-io/fotad/pkg/log"
)

const (
	commandName = "fota-success"
	commandDesc = `fota-success confirms the current boot once the system has proven stable:
it resets the boot attempt counter and promotes a pending version to
confirmed. It deliberately waits for a settle delay (and optionally an
application ready file) first; running it at process start would defeat
the rollback mechanism.`
)

func NewApp() *app.App {
	opts := options.NewSuccessOptions()
	application := app.NewApp(
		commandName,
		"Confirm the current boot as successful",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.SuccessOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Flush()

		ctx := app.SetupSignalContext()

		if opts.Settle > 0 {
			log.Info("Settling before confirming boot", "delay", opts.Settle.String())
			select {
			case <-time.After(opts.Settle):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if opts.ReadyFile != "" {
			if err := awaitFile(ctx, opts.ReadyFile, opts.ReadyTimeout); err != nil {
				return err
			}
		}

		store := bootstate.New(opts.StoreOptions.Path)
		st, err := monitor.New(store).MarkSuccess()
		if err != nil {
			return fmt.Errorf("failed to confirm boot: %w", err)
		}

		log.Info("Boot confirmed",
			"slot", st.ActiveSlot,
			"version", st.ConfirmedVersion)
		return nil
	}
}

func awaitFile(ctx context.Context, path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("ready file %s did not appear within %s", path, timeout)
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
