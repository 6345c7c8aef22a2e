package options

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestSlotOptionsBundleFlags(t *testing.T) {
	o := NewSlotOptions()
	if o.KernelImage == "" || o.BaseCmdline == "" {
		t.Fatalf("bundle defaults missing: kernel=%q cmdline=%q", o.KernelImage, o.BaseCmdline)
	}
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults rejected: %v", errs)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	if err := fs.Parse([]string{
		"--slot.kernel-image=Image.gz",
		"--slot.base-cmdline=console=ttyS0 ro",
	}); err != nil {
		t.Fatal(err)
	}
	if o.KernelImage != "Image.gz" {
		t.Errorf("kernel image = %q", o.KernelImage)
	}
	if o.BaseCmdline != "console=ttyS0 ro" {
		t.Errorf("base cmdline = %q", o.BaseCmdline)
	}

	o.KernelImage = ""
	if errs := o.Validate(); len(errs) == 0 {
		t.Error("empty kernel image accepted")
	}
}
