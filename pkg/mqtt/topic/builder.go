package topic

import (
	"fmt"
)

// Topic segments published by the update agent. These form the telemetry
// contract between devices and any fleet backend listening on the broker.
const (
	// SuffixStatus carries the agent's current status snapshot.
	// Structure: {root}/status/{deviceID}
	SuffixStatus = "status"

	// SuffixEvent carries update cycle results (completed, failed).
	// Structure: {root}/event/{deviceID}
	SuffixEvent = "event"

	// SuffixOnline carries online/offline presence, also used for the
	// broker last-will message.
	// Structure: {root}/online/{deviceID}
	SuffixOnline = "online"

	// SuffixCommand carries downstream commands from the fleet backend to
	// one device (check now, roll back).
	// Structure: {root}/command/{deviceID}
	SuffixCommand = "command"
)

// Builder constructs MQTT topic strings under a fixed root namespace.
type Builder struct {
	root string
}

// NewBuilder creates a Builder with the specified root namespace
// (e.g. "fota/v1").
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Status returns the status topic for a device.
func (b *Builder) Status(deviceID string) string {
	return b.build(SuffixStatus, deviceID)
}

// Event returns the event topic for a device.
func (b *Builder) Event(deviceID string) string {
	return b.build(SuffixEvent, deviceID)
}

// Online returns the presence topic for a device.
func (b *Builder) Online(deviceID string) string {
	return b.build(SuffixOnline, deviceID)
}

// Command returns the downstream command topic for a device.
func (b *Builder) Command(deviceID string) string {
	return b.build(SuffixCommand, deviceID)
}

// StatusWildcard returns the wildcard filter matching every device's status.
func (b *Builder) StatusWildcard() string {
	return b.build(SuffixStatus, "+")
}

func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
