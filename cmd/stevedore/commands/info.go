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
)

func infoCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "info",
		Summary: "Show daemon endpoint and build information",
		Usage:   "stevedore info [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("info", pflag.ContinueOnError)
			conn.register(flags)
			return flags
		},
		Run: func(args []string) error {
			daemon, err := conn.newClient()
			if err != nil {
				return err
			}
			defer daemon.Close()

			server, err := daemon.ServerVersion(context.Background())
			if err != nil {
				return err
			}

			endpoint := daemon.Endpoint()
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Endpoint:\t%s://%s\n", endpoint.Scheme, endpoint.Address)
			fmt.Fprintf(tw, "TLS:\t%v\n", endpoint.TLS != nil)
			fmt.Fprintf(tw, "Daemon:\t%s\n", server.Version)
			fmt.Fprintf(tw, "API:\t%s\n", server.APIVersion)
			fmt.Fprintf(tw, "Platform:\t%s/%s\n", server.Os, server.Arch)
			return tw.Flush()
		},
	}
}
