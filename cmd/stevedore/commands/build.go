// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/stevedore-project/stevedore/buildcontext"
	"github.com/stevedore-project/stevedore/client"
	"github.com/stevedore-project/stevedore/cmd/stevedore/cli"
	"github.com/stevedore-project/stevedore/session"
	"github.com/stevedore-project/stevedore/stream"
)

func buildCommand() *cli.Command {
	conn := &connection{}
	var (
		tags       []string
		dockerfile string
		buildArgs  []string
		labels     []string
		noCache    bool
		pull       bool
		compress   string
		forwardSSH bool
	)
	return &cli.Command{
		Name:    "build",
		Summary: "Build an image from a directory",
		Usage:   "stevedore build <directory> [flags]",
		Examples: []cli.Example{
			{Description: "Build and tag the current directory", Command: "stevedore build -t app:latest ."},
			{Description: "Build with SSH agent forwarding for private dependencies", Command: "stevedore build --ssh -t app:latest ."},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("build", pflag.ContinueOnError)
			conn.register(flags)
			flags.StringSliceVarP(&tags, "tag", "t", nil, "name:tag for the built image (repeatable)")
			flags.StringVarP(&dockerfile, "file", "f", "", "Dockerfile path within the context (default Dockerfile)")
			flags.StringSliceVar(&buildArgs, "build-arg", nil, "build-time variable as name=value (repeatable)")
			flags.StringSliceVar(&labels, "label", nil, "image label as name=value (repeatable)")
			flags.BoolVar(&noCache, "no-cache", false, "disable layer cache reuse")
			flags.BoolVar(&pull, "pull", false, "always pull base images")
			flags.StringVar(&compress, "compress", "none", "context compression: none, gzip, or zstd")
			flags.BoolVar(&forwardSSH, "ssh", false, "forward the local SSH agent to the build")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("build requires exactly one context directory")
			}
			contextDir := args[0]

			compression, err := parseCompression(compress)
			if err != nil {
				return err
			}

			daemon, err := conn.newClient()
			if err != nil {
				return err
			}
			defer daemon.Close()

			buildArgMap, err := parseKeyValues(buildArgs, "build-arg")
			if err != nil {
				return err
			}
			labelMap, err := parseKeyValues(labels, "label")
			if err != nil {
				return err
			}

			exclude, err := buildcontext.ReadIgnoreFile(contextDir)
			if err != nil {
				return err
			}
			contextStream, err := buildcontext.Pack(contextDir, buildcontext.Options{
				Exclude:     exclude,
				Compression: compression,
			})
			if err != nil {
				return err
			}
			defer contextStream.Close()

			options := client.BuildOptions{
				Tags:             tags,
				Dockerfile:       dockerfile,
				BuildArgs:        buildArgMap,
				Labels:           labelMap,
				NoCache:          noCache,
				Pull:             pull,
				Context:          contextStream,
				ContextMediaType: compression.MediaType(),
			}

			if forwardSSH {
				buildSession, err := session.New(cli.NewCommandLogger(conn.debug))
				if err != nil {
					return err
				}
				buildSession.Register(session.MethodSSHAgent, &session.SSHAgentProvider{})
				buildSession.Register(session.MethodFileSync, &session.FileSyncProvider{Root: contextDir})
				options.Session = buildSession
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			build, err := daemon.ImageBuild(ctx, options)
			if err != nil {
				return err
			}
			defer build.Close()

			return renderProgress(build)
		},
	}
}

// renderProgress prints the build's progress stream until it ends,
// returning the daemon's build error if one arrives.
func renderProgress(build *client.Build) error {
	styles := cli.NewStyles()
	for {
		message, err := build.Next()
		if err == io.EOF {
			return nil
		}
		var messageErr *stream.JSONMessageError
		if errors.As(err, &messageErr) {
			fmt.Fprintln(os.Stderr, styles.Error.Render(messageErr.Message))
			return fmt.Errorf("build failed: %s", messageErr.Message)
		}
		if err != nil {
			return err
		}

		switch {
		case message.Stream != "":
			if strings.HasPrefix(message.Stream, "Step ") {
				fmt.Print(styles.Step.Render(strings.TrimRight(message.Stream, "\n")) + "\n")
			} else {
				fmt.Print(message.Stream)
			}
		case message.Status != "":
			line := message.Status
			if message.ID != "" {
				line = message.ID + ": " + line
			}
			if message.Progress != "" {
				line += " " + message.Progress
			}
			fmt.Println(styles.Detail.Render(line))
		case len(message.Aux) > 0:
			fmt.Println(styles.Success.Render("image: " + strings.Trim(string(message.Aux), `"{}`)))
		}
	}
}

// parseCompression maps the --compress flag value.
func parseCompression(value string) (buildcontext.Compression, error) {
	switch value {
	case "none", "":
		return buildcontext.Uncompressed, nil
	case "gzip":
		return buildcontext.Gzip, nil
	case "zstd":
		return buildcontext.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, gzip, or zstd)", value)
	}
}

// parseKeyValues splits repeated name=value flags into a map.
func parseKeyValues(pairs []string, flagName string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("--%s %q is not name=value", flagName, pair)
		}
		values[name] = value
	}
	return values, nil
}
