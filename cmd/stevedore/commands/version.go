// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/stevedore-project/stevedore/cmd/stevedore/cli"
	"github.com/stevedore-project/stevedore/lib/version"
)

func versionCommand() *cli.Command {
	conn := &connection{}
	clientOnly := false
	return &cli.Command{
		Name:    "version",
		Summary: "Show client and daemon version information",
		Usage:   "stevedore version [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("version", pflag.ContinueOnError)
			conn.register(flags)
			flags.BoolVar(&clientOnly, "client", false, "show only the client version")
			return flags
		},
		Run: func(args []string) error {
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Client:\t%s\n", version.Info())
			if clientOnly {
				return tw.Flush()
			}

			daemon, err := conn.newClient()
			if err != nil {
				return err
			}
			defer daemon.Close()

			server, err := daemon.ServerVersion(context.Background())
			if err != nil {
				// The client version already printed; a dead daemon
				// should not hide it.
				tw.Flush()
				return fmt.Errorf("fetching daemon version: %w", err)
			}
			fmt.Fprintf(tw, "Server:\t%s (API %s, %s/%s)\n", server.Version, server.APIVersion, server.Os, server.Arch)

			negotiated, err := daemon.Version(context.Background())
			if err == nil {
				fmt.Fprintf(tw, "Negotiated API:\t%s\n", negotiated)
			}
			return tw.Flush()
		},
	}
}
