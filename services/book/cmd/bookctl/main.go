// Command bookctl runs storage diagnostics against the configured catalog and
// bucket without going through the HTTP service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, openApp).Execute(); err != nil {
		os.Exit(1)
	}
}
