// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// stevedore is a command-line client for the Docker Engine API.
//
// Usage:
//
//	stevedore <command> [flags]
//
// Run "stevedore --help" for the command list.
package main

import (
	"fmt"
	"os"

	"github.com/stevedore-project/stevedore/cmd/stevedore/commands"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
