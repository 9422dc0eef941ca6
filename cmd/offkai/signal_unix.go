//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals are the shutdown triggers on POSIX systems. Process
// managers (systemd, container runtimes) send SIGTERM; a terminal sends
// os.Interrupt.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
