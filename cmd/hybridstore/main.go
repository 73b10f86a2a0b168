// Package main provides the entry point for the hybridstore CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/hybridstore/cmd/hybridstore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
