package slot

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/fotad-io/fotad/pkg/log"
)

// ExecProvisioner shells out to the standard system utilities, the way the
// device's recovery tooling does. It is the production Provisioner and
// Extractor.
type ExecProvisioner struct{}

var (
	_ Provisioner = (*ExecProvisioner)(nil)
	_ Extractor   = (*ExecProvisioner)(nil)
)

func NewExecProvisioner() *ExecProvisioner {
	return &ExecProvisioner{}
}

func (p *ExecProvisioner) Format(ctx context.Context, dev, label string) error {
	log.Info("Formatting slot region", "dev", dev, "label", label)
	return runCommand(ctx, "mkfs.ext4", "-F", "-L", label, dev)
}

func (p *ExecProvisioner) Mount(ctx context.Context, dev, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create mount point %s: %w", dir, err)
	}
	return runCommand(ctx, "mount", dev, dir)
}

func (p *ExecProvisioner) Unmount(ctx context.Context, dir string) error {
	if err := runCommand(ctx, "sync"); err != nil {
		return err
	}
	return runCommand(ctx, "umount", dir)
}

func (p *ExecProvisioner) Extract(ctx context.Context, path, dir string) error {
	log.Info("Extracting archive", "archive", path, "dest", dir)
	return runCommand(ctx, "tar", "-xzf", path, "-C", dir)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, out)
	}
	return nil
}
