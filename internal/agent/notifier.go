package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fotad-io/fotad/pkg/log"
	"github.com/fotad-io/fotad/pkg/mqtt"
	"github.com/fotad-io/fotad/pkg/mqtt/topic"
)

// Notifier reports agent activity to the fleet backend. Implementations
// must never block a cycle on delivery.
type Notifier interface {
	// StateChanged is called on every state machine transition.
	StateChanged(ctx context.Context, st Status)
	// CycleFinished is called once per completed cycle, success or not.
	CycleFinished(ctx context.Context, st Status)
}

// NopNotifier is used when no broker is configured.
type NopNotifier struct{}

func (NopNotifier) StateChanged(context.Context, Status)  {}
func (NopNotifier) CycleFinished(context.Context, Status) {}

// MqttNotifier publishes status snapshots as JSON. State changes go to the
// retained status topic so the backend always sees the latest; cycle
// results go to the event topic.
type MqttNotifier struct {
	client   mqtt.Client
	topics   *topic.Builder
	deviceID string

	logger log.Logger
}

func NewMqttNotifier(client mqtt.Client, topics *topic.Builder, deviceID string) *MqttNotifier {
	return &MqttNotifier{
		client:   client,
		topics:   topics,
		deviceID: deviceID,
		logger:   log.WithName("notifier"),
	}
}

type statusPayload struct {
	Status
	Timestamp time.Time `json:"timestamp"`
}

func (n *MqttNotifier) StateChanged(ctx context.Context, st Status) {
	n.publish(ctx, n.topics.Status(n.deviceID), true, st)
}

func (n *MqttNotifier) CycleFinished(ctx context.Context, st Status) {
	n.publish(ctx, n.topics.Event(n.deviceID), false, st)
}

func (n *MqttNotifier) publish(ctx context.Context, t string, retain bool, st Status) {
	payload, err := json.Marshal(statusPayload{Status: st, Timestamp: time.Now().UTC()})
	if err != nil {
		n.logger.Error(err, "Failed to encode status payload")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := n.client.Publish(pubCtx, t, 1, retain, payload); err != nil {
		// Telemetry only. The cycle outcome does not depend on it.
		n.logger.Warn("Failed to publish status", "topic", t, "error", err.Error())
	}
}
