// Package main provides the entry point for the obssync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/omuapps/obssync/cmd/obssync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
