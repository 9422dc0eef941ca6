//go:build windows

package main

import (
	"os"
)

// terminationSignals are the shutdown triggers on Windows, where Ctrl+C is
// the only one the runtime delivers.
var terminationSignals = []os.Signal{os.Interrupt}
