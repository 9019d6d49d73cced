// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/stevedore-project/stevedore/cmd/stevedore/cli"
)

func pingCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "ping",
		Summary: "Check daemon liveness",
		Usage:   "stevedore ping [flags]",
		Examples: []cli.Example{
			{Description: "Ping a remote daemon over SSH", Command: "stevedore ping --host ssh://build@remote"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("ping", pflag.ContinueOnError)
			conn.register(flags)
			return flags
		},
		Run: func(args []string) error {
			daemon, err := conn.newClient()
			if err != nil {
				return err
			}
			defer daemon.Close()

			if err := daemon.Ping(context.Background()); err != nil {
				return err
			}
			styles := cli.NewStyles()
			fmt.Println(styles.Success.Render("OK"))
			return nil
		},
	}
}
