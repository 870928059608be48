// Command nexuskernel mounts and serves a nexuskernel virtual filesystem.
package main

import (
	"fmt"
	"os"

	"github.com/nexi-lab/nexuskernel/cmd/nexuskernel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
