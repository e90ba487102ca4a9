package main

import (
	"github.com/driftlock/driftlock/cmd"
	"github.com/driftlock/driftlock/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
