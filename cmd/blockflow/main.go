// Command blockflow runs block programs against a device and manages the
// programs kept in the NATS program store.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/c360/blockflow/errors"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "blockflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(3)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		slog.Error("blockflow failed", "error", err, "exit_code", code)
		os.Exit(code)
	}
}

// exitCode maps an error class to the process exit status: 2 for bad input
// or configuration, 1 for everything else
func exitCode(err error) int {
	if errors.IsInvalid(err) {
		return 2
	}
	return 1
}
