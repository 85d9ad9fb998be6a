package main

import (
	"fmt"
	"os"

	"stressfleet/core/status"
)

func main() {
	args := os.Args[1:]

	// Job file options splice in ahead of the command line so explicit
	// flags win.
	args, err := spliceJobFile(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stressfleet:", err)
		os.Exit(status.Failure)
	}

	os.Exit(run(args))
}
