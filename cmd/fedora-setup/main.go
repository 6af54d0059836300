package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aahsnr/fedora-setup/cmd/fedora-setup/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
