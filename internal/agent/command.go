package agent

import (
	"context"
	"encoding/json"

	"github.com/fotad-io/fotad/pkg/log"
	"github.com/fotad-io/fotad/pkg/mqtt"
)

// Commander is the agent surface downstream fleet commands can drive.
// Satisfied by *Agent.
type Commander interface {
	ForceCheck() bool
	ForceRollback() (Status, error)
}

// Actions accepted on the device's command topic.
const (
	CommandCheck    = "check"
	CommandRollback = "rollback"
)

type commandMessage struct {
	Action string `json:"action"`
}

// NewCommandHandler returns the MQTT handler for the device's command
// topic. Malformed or unknown commands are logged and dropped; a broker
// must not be able to crash the agent.
func NewCommandHandler(c Commander) mqtt.MessageHandler {
	logger := log.WithName("command")
	return func(ctx context.Context, t string, payload []byte) {
		var msg commandMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Error(err, "Discarding malformed command", "topic", t)
			return
		}

		switch msg.Action {
		case CommandCheck:
			queued := c.ForceCheck()
			logger.Info("Fleet check command received", "queued", queued)
		case CommandRollback:
			st, err := c.ForceRollback()
			if err != nil {
				logger.Error(err, "Fleet rollback command failed")
				return
			}
			logger.Warn("Fleet rollback command applied", "active", st.ActiveSlot)
		default:
			logger.Info("Ignoring unknown command", "action", msg.Action, "topic", t)
		}
	}
}
