package main

import (
	"github.com/gantry-org/gantry/cmd"
	"github.com/gantry-org/gantry/internal/build"
)

var version = "dev"

func main() {
	build.Version = version
	cmd.Execute()
}
