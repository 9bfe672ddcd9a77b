// Command bellhop runs the voice presence agent.
package main

import (
	"os"

	"github.com/bellhopd/bellhop/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
