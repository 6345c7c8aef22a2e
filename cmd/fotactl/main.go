package main

import (
	"fmt"
	"os"

	"github.com/fotad-io/fotad/cmd/fotactl/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fotactl: %v\n", err)
		os.Exit(1)
	}
}
