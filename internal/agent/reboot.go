package agent

import (
	"context"
	"fmt"
	"os/exec"
)

// Rebooter requests a system reboot after a switch has been staged. The
// staged switch survives either way; a failed reboot request only delays
// adoption until the next power cycle.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// ExecRebooter shells out to the system reboot command.
type ExecRebooter struct{}

func (ExecRebooter) Reboot(ctx context.Context) error {
	if out, err := exec.CommandContext(ctx, "systemctl", "reboot").CombinedOutput(); err != nil {
		return fmt.Errorf("reboot: %w: %s", err, out)
	}
	return nil
}

// NopRebooter is for deployments where an external supervisor decides when
// to reboot.
type NopRebooter struct{}

func (NopRebooter) Reboot(context.Context) error { return nil }
