// Command ymmctl is the operator tool for the registry: schema migration,
// year locks, counter maintenance, sequence verification and event tailing.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
