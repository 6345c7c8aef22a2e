package fastboot

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/fotad-io/fotad/pkg/log"
)

// KexecLoader stages the bundle's kernel with kexec -l and then transfers
// control with kexec -e. On success the second call never returns.
type KexecLoader struct{}

func (KexecLoader) Boot(ctx context.Context, bootDir string, b *Bundle) error {
	args := []string{"-l", filepath.Join(bootDir, b.Kernel)}
	if b.Initrd != "" {
		args = append(args, "--initrd="+filepath.Join(bootDir, b.Initrd))
	}
	if b.DeviceTree != "" {
		args = append(args, "--dtb="+filepath.Join(bootDir, b.DeviceTree))
	}
	if b.CommandLine != "" {
		args = append(args, "--command-line="+b.CommandLine)
	}
	if out, err := exec.CommandContext(ctx, "kexec", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("kexec load: %w: %s", err, out)
	}

	log.Flush()
	if out, err := exec.CommandContext(ctx, "kexec", "-e").CombinedOutput(); err != nil {
		return fmt.Errorf("kexec exec: %w: %s", err, out)
	}
	return nil
}

// ExecFallback starts the full bootloader chain by running an external
// command, typically a script that hands control back to u-boot's normal
// boot flow.
type ExecFallback struct {
	Command string
	Args    []string
}

func (f ExecFallback) Boot(ctx context.Context) error {
	if f.Command == "" {
		return ErrFallbackUnavailable
	}
	if out, err := exec.CommandContext(ctx, f.Command, f.Args...).CombinedOutput(); err != nil {
		return fmt.Errorf("fallback %s: %w: %s", f.Command, err, out)
	}
	return nil
}
