package main

import (
	"fmt"
	"os"

	"github.com/panda3d/panda3d-sub012/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pkginst:", err)
		os.Exit(1)
	}
}
