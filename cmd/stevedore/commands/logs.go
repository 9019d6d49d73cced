// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/stevedore-project/stevedore/client"
	"github.com/stevedore-project/stevedore/cmd/stevedore/cli"
	"github.com/stevedore-project/stevedore/stream"
)

func logsCommand() *cli.Command {
	conn := &connection{}
	options := client.LogsOptions{Stdout: true, Stderr: true}
	return &cli.Command{
		Name:    "logs",
		Summary: "Fetch a container's logs",
		Usage:   "stevedore logs <container> [flags]",
		Examples: []cli.Example{
			{Description: "Follow a container's output", Command: "stevedore logs --follow web"},
			{Description: "Last 50 lines with timestamps", Command: "stevedore logs --tail 50 --timestamps web"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("logs", pflag.ContinueOnError)
			conn.register(flags)
			flags.BoolVarP(&options.Follow, "follow", "f", false, "stream new output as it is produced")
			flags.BoolVarP(&options.Timestamps, "timestamps", "t", false, "prefix each line with its timestamp")
			flags.StringVar(&options.Tail, "tail", "", "number of lines from the end (default all)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("logs requires exactly one container name or id")
			}

			daemon, err := conn.newClient()
			if err != nil {
				return err
			}
			defer daemon.Close()

			// Interrupt ends a --follow stream cleanly instead of
			// leaving the connection dangling.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logs, err := daemon.ContainerLogs(ctx, args[0], options)
			if err != nil {
				return err
			}
			defer logs.Close()

			if !logs.Multiplexed {
				_, err := io.Copy(os.Stdout, logs.Body)
				return err
			}
			if err := stream.Copy(os.Stdout, os.Stderr, logs.Body); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
