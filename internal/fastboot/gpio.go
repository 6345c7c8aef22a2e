package fastboot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GPIOInput reads a recovery button through the sysfs GPIO interface. The
// line is exported and configured as an input by the early init; we only
// read the value here.
type GPIOInput struct {
	// Root of the sysfs gpio tree, normally /sys/class/gpio.
	Root string
	// Line number, e.g. 72 for the USER button on a BeagleBone Black.
	Line int
	// ActiveLow means a read of "0" reports the button as pressed, which
	// is the usual wiring for a button pulling the line to ground.
	ActiveLow bool
}

func (g *GPIOInput) valuePath() string {
	root := g.Root
	if root == "" {
		root = "/sys/class/gpio"
	}
	return filepath.Join(root, fmt.Sprintf("gpio%d", g.Line), "value")
}

// Pressed samples the line once.
func (g *GPIOInput) Pressed() (bool, error) {
	raw, err := os.ReadFile(g.valuePath())
	if err != nil {
		return false, fmt.Errorf("read gpio %d: %w", g.Line, err)
	}
	v := strings.TrimSpace(string(raw))
	switch v {
	case "0":
		return g.ActiveLow, nil
	case "1":
		return !g.ActiveLow, nil
	default:
		return false, fmt.Errorf("gpio %d: unexpected value %q", g.Line, v)
	}
}

// NoRecovery is used when the board has no recovery input wired.
type NoRecovery struct{}

func (NoRecovery) Pressed() (bool, error) { return false, nil }
