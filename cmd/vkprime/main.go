package main

import (
	"os"
	"runtime"

	"github.com/celer/vkc/cmd/vkprime/commands"
)

func init() {
	// Vulkan drivers expect calls from the thread that created the instance.
	runtime.LockOSThread()
}

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
