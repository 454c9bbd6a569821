// Command serverpool runs a pool of throwaway local HTTP servers behind a
// REST and WebSocket control surface.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
