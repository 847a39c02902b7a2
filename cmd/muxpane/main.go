package main

import (
	"os"

	"github.com/muxpane/muxpane/internal/cli/entry"
)

var version = "dev"

func main() {
	os.Exit(entry.Run(os.Args, version))
}
