package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/quatton/batchffmpeg/apps/wrapper/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "ffmpeg-wrapper crashed: %v\n", r)
			if os.Getenv("FFWRAP_DEBUG") != "" {
				debug.PrintStack()
			}
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
