// Command flatinspect builds, verifies and inspects flatcore buffers.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
