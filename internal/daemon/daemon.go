// Package daemon assembles the update agent, operator API server, manual
// trigger watcher, and fleet notifier into one supervised process.
package daemon

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fotad-io/fotad/internal/agent"
	"github.com/fotad-io/fotad/internal/agentserver"
	"github.com/fotad-io/fotad/internal/bootstate"
	"github.com/fotad-io/fotad/internal/slot"
	"github.com/fotad-io/fotad/pkg/log"
	"github.com/fotad-io/fotad/pkg/mqtt"
	"github.com/fotad-io/fotad/pkg/mqtt/topic"
	"github.com/fotad-io/fotad/pkg/options"
)

// Config aggregates the per-concern option structs filled by the CLI.
type Config struct {
	HttpOptions     *options.HttpOptions
	ManifestOptions *options.ManifestOptions
	StoreOptions    *options.StoreOptions
	SlotOptions     *options.SlotOptions
	AgentOptions    *options.AgentOptions
	MqttOptions     *options.MqttOptions
	S3Options       *options.S3Options
}

// Daemon owns the long-lived pieces of the fotad process.
type Daemon struct {
	cfg *Config

	agent      *agent.Agent
	server     *agentserver.Server
	trigger    *agent.TriggerWatcher
	mqttClient mqtt.Client

	// commandTopic is the per-device downstream command filter, set only
	// when MQTT is configured.
	commandTopic string
}

// NewDaemon wires all collaborators. The boot state record is provisioned
// on first run so a fresh device starts from the safe defaults.
func NewDaemon(cfg *Config) (*Daemon, error) {
	store := bootstate.New(cfg.StoreOptions.Path)
	if _, err := store.Provision(cfg.StoreOptions.AttemptLimit); err != nil {
		return nil, fmt.Errorf("failed to provision boot state store: %w", err)
	}

	manifest := agent.NewManifestClient(
		cfg.ManifestOptions.ServerURL,
		cfg.ManifestOptions.DeviceID,
		cfg.ManifestOptions.Timeout,
	)

	var fetcher agent.Fetcher = agent.NewHTTPFetcher(
		cfg.ManifestOptions.DownloadTimeout,
		cfg.ManifestOptions.Retries,
	)
	if cfg.S3Options.Enabled() {
		s3, err := agent.NewS3Fetcher(cfg.S3Options)
		if err != nil {
			return nil, fmt.Errorf("failed to init object store fetcher: %w", err)
		}
		fetcher = &agent.RoutingFetcher{HTTP: fetcher, S3: s3}
	}

	var notifier agent.Notifier = agent.NopNotifier{}
	var mqttClient mqtt.Client
	var commandTopic string
	if cfg.MqttOptions.Enabled() {
		topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)

		clientCfg := cfg.MqttOptions.ToClientConfig()
		if clientCfg.ClientID == "" {
			clientCfg.ClientID = "fotad-" + cfg.ManifestOptions.DeviceID
		}
		clientCfg.WillTopic = topics.Online(cfg.ManifestOptions.DeviceID)
		clientCfg.WillPayload = []byte(`{"online":false}`)
		clientCfg.WillRetain = true

		client, err := mqtt.NewClient(clientCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		mqttClient = client
		notifier = agent.NewMqttNotifier(client, topics, cfg.ManifestOptions.DeviceID)
		commandTopic = topics.Command(cfg.ManifestOptions.DeviceID)
	}

	prov := slot.NewExecProvisioner()
	installer := agent.NewInstaller(prov, prov, cfg.SlotOptions.MountDir)

	a, err := agent.New(agent.Config{
		Store:        store,
		Layout:       cfg.SlotOptions.ToLayout(),
		Manifest:     manifest,
		Fetcher:      fetcher,
		Installer:    installer,
		Rebooter:     agent.ExecRebooter{},
		Notifier:     notifier,
		ScratchDir:   cfg.SlotOptions.ScratchDir,
		PollInterval: cfg.ManifestOptions.PollInterval,
		KernelImage:  cfg.SlotOptions.KernelImage,
		BaseCmdline:  cfg.SlotOptions.BaseCmdline,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init update agent: %w", err)
	}

	return &Daemon{
		cfg:          cfg,
		agent:        a,
		server:       agentserver.NewServer(cfg.HttpOptions, a),
		trigger:      agent.NewTriggerWatcher(cfg.AgentOptions.TriggerFile),
		mqttClient:   mqttClient,
		commandTopic: commandTopic,
	}, nil
}

// Start launches all parts in parallel and waits for termination.
func (d *Daemon) Start(ctx context.Context) error {
	if d.mqttClient != nil {
		if err := d.mqttClient.Start(ctx); err != nil {
			return fmt.Errorf("failed to start mqtt client: %w", err)
		}
		defer d.mqttClient.Disconnect(context.Background())

		// Listen for downstream fleet commands (check now, roll back).
		if err := d.mqttClient.Subscribe(ctx, d.commandTopic, 1, agent.NewCommandHandler(d.agent)); err != nil {
			return fmt.Errorf("failed to subscribe to command topic: %w", err)
		}
	}

	checkNow := make(chan struct{}, 1)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.agent.Run(ctx)
	})
	g.Go(func() error {
		return d.server.Start(ctx)
	})
	g.Go(func() error {
		return d.trigger.Run(ctx, checkNow)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-checkNow:
				d.agent.ForceCheck()
			}
		}
	})

	log.Info("fotad starting",
		"device", d.cfg.ManifestOptions.DeviceID,
		"server", d.cfg.ManifestOptions.ServerURL,
		"api", d.cfg.HttpOptions.Addr)
	return g.Wait()
}
