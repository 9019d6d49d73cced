// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable pointing at the config
// file. The --config flag takes precedence over it.
const EnvConfig = "STEVEDORE_CONFIG"

// Config is the CLI configuration file. Everything in it is optional;
// unset values fall back to the DOCKER_* environment variables and the
// platform default socket.
type Config struct {
	// Host is the daemon endpoint ("unix:///run/docker.sock",
	// "tcp://10.0.0.5:2376", "ssh://build@remote").
	Host string `yaml:"host"`

	// APIVersion pins the daemon API version instead of negotiating.
	APIVersion string `yaml:"api_version"`

	// TLS configures certificate-based transport security for TCP
	// endpoints.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig is the TLS material section of the config file.
type TLSConfig struct {
	// CertPath is the directory holding ca.pem, cert.pem, and key.pem.
	CertPath string `yaml:"cert_path"`

	// Verify requires server certificate validation. Off only for
	// development daemons with self-signed material.
	Verify bool `yaml:"verify"`
}

// LoadConfig reads the config file named by path, or by the
// STEVEDORE_CONFIG environment variable when path is empty. No file at
// all yields a zero Config: the CLI works without one.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return Config{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cli: reading config %s: %w", path, err)
	}

	var config Config
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("cli: parsing config %s: %w", path, err)
	}
	return config, nil
}
