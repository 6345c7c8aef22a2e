package app

import (
	"fmt"

	"github.com/fotad-io/fotad/cmd/fotad/app/options"
	"github.com/fotad-io/fotad/internal/daemon"
	"github.com/fotad-io/fotad/pkg/app"
	"github.com/fotad-io/fotad/pkg/log"
)

const (
	commandName = "fotad"
	commandDesc = `The fotad daemon keeps an A/B partitioned device up to date: it polls the
update server for a manifest, downloads and verifies the advertised
artifacts, flashes the standby slot, and stages the switchover so the next
power cycle boots the new version. It also serves the local operator API
(status, check-now, rollback-now) and optionally reports state changes to
the fleet backend over MQTT.`
)

func NewApp() *app.App {
	opts := options.NewDaemonOptions()
	application := app.NewApp(
		commandName,
		"Launch the firmware update agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.DaemonOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Flush()

		ctx := app.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		d, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		return d.Start(ctx)
	}
}
