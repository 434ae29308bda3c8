// Command playground compiles and runs user programs for browser clients
// (serve) or for the local terminal (run).
//
//	playground serve --config playground.yaml
//	playground run main.rs
//	playground version
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// exitError carries a child program's exit status out of "run" without
// printing anything more.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
