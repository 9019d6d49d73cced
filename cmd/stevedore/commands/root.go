// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the stevedore CLI command tree.
package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/stevedore-project/stevedore/client"
	"github.com/stevedore-project/stevedore/cmd/stevedore/cli"
	"github.com/stevedore-project/stevedore/transport"
)

// Root returns the top-level stevedore command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "stevedore",
		Summary: "Client for the Docker Engine API",
		Description: `stevedore talks to a container daemon over its HTTP API: local Unix
sockets, remote TCP with or without TLS, and SSH tunnels.`,
		Subcommands: []*cli.Command{
			versionCommand(),
			pingCommand(),
			infoCommand(),
			logsCommand(),
			buildCommand(),
		},
	}
}

// connection carries the flags shared by every daemon-facing command
// and builds the client from them.
type connection struct {
	configPath string
	host       string
	apiVersion string
	debug      bool
}

// register adds the shared connection flags to a command's flag set.
func (c *connection) register(flags *pflag.FlagSet) {
	flags.StringVar(&c.configPath, "config", "", "config file (default $STEVEDORE_CONFIG)")
	flags.StringVar(&c.host, "host", "", "daemon endpoint (default $DOCKER_HOST, then the platform socket)")
	flags.StringVar(&c.apiVersion, "api-version", "", "pin the daemon API version instead of negotiating")
	flags.BoolVar(&c.debug, "debug", false, "verbose transport logging")
}

// newClient resolves the endpoint with the precedence flag > config
// file > environment and constructs the client.
func (c *connection) newClient() (*client.Client, error) {
	config, err := cli.LoadConfig(c.configPath)
	if err != nil {
		return nil, err
	}

	options := client.Options{Logger: cli.NewCommandLogger(c.debug)}

	host := c.host
	if host == "" {
		host = config.Host
	}
	if host != "" {
		endpoint, err := transport.ParseEndpoint(host)
		if err != nil {
			return nil, err
		}
		if config.TLS.CertPath != "" && endpoint.Scheme == transport.SchemeTCP {
			tlsConfig, err := transport.LoadTLSConfig(config.TLS.CertPath, config.TLS.Verify)
			if err != nil {
				return nil, err
			}
			endpoint.TLS = tlsConfig
		}
		options.Endpoint = endpoint
	}

	pin := c.apiVersion
	if pin == "" {
		pin = config.APIVersion
	}
	if pin != "" {
		pinned, err := client.ParseAPIVersion(pin)
		if err != nil {
			return nil, err
		}
		options.PinnedVersion = pinned
	}

	daemon, err := client.New(options)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	return daemon, nil
}
