// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		name    string
		address string
		want    Endpoint
	}{
		{"unix", "unix:///var/run/docker.sock", Endpoint{Scheme: SchemeUnix, Address: "/var/run/docker.sock"}},
		{"npipe", "npipe:////./pipe/docker_engine", Endpoint{Scheme: SchemeNamedPipe, Address: "//./pipe/docker_engine"}},
		{"tcp with port", "tcp://daemon.example:2376", Endpoint{Scheme: SchemeTCP, Address: "daemon.example:2376"}},
		{"tcp default port", "tcp://daemon.example", Endpoint{Scheme: SchemeTCP, Address: "daemon.example:2375"}},
		{"http", "http://daemon.example:8080", Endpoint{Scheme: SchemeTCP, Address: "daemon.example:8080"}},
		{"ssh with user", "ssh://core@daemon.example", Endpoint{Scheme: SchemeSSH, Address: "daemon.example:22", User: "core"}},
		{"ssh with port", "ssh://daemon.example:2222", Endpoint{Scheme: SchemeSSH, Address: "daemon.example:2222"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseEndpoint(c.address)
			if err != nil {
				t.Fatalf("ParseEndpoint(%q): %v", c.address, err)
			}
			if got.Scheme != c.want.Scheme || got.Address != c.want.Address || got.User != c.want.User {
				t.Errorf("ParseEndpoint(%q) = %+v, want %+v", c.address, got, c.want)
			}
		})
	}
}

func TestParseEndpointHTTPSCarriesTLS(t *testing.T) {
	endpoint, err := ParseEndpoint("https://daemon.example")
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	if endpoint.TLS == nil {
		t.Error("https endpoint has no TLS config")
	}
	if endpoint.Address != "daemon.example:2376" {
		t.Errorf("address = %q, want default TLS port", endpoint.Address)
	}
}

func TestParseEndpointInvalid(t *testing.T) {
	for _, address := range []string{"no-scheme", "ftp://daemon", "unix://", "ssh://"} {
		_, err := ParseEndpoint(address)
		var addressErr *AddressError
		if !errors.As(err, &addressErr) {
			t.Errorf("ParseEndpoint(%q) err = %v, want *AddressError", address, err)
		}
	}
}

func TestParseEndpointEmptyDefaults(t *testing.T) {
	endpoint, err := ParseEndpoint("")
	if err != nil {
		t.Fatalf("ParseEndpoint(\"\"): %v", err)
	}
	if endpoint != defaultEndpoint() {
		t.Errorf("empty address = %+v, want platform default", endpoint)
	}
}

func TestFromEnvironment(t *testing.T) {
	t.Setenv(EnvHost, "tcp://envhost:9999")
	t.Setenv(EnvCertPath, "")
	t.Setenv(EnvTLSVerify, "")

	endpoint, err := FromEnvironment()
	if err != nil {
		t.Fatalf("FromEnvironment: %v", err)
	}
	if endpoint.Scheme != SchemeTCP || endpoint.Address != "envhost:9999" || endpoint.TLS != nil {
		t.Errorf("endpoint = %+v", endpoint)
	}
}

func TestFromEnvironmentTLSVerify(t *testing.T) {
	t.Setenv(EnvHost, "tcp://envhost:2376")
	t.Setenv(EnvCertPath, "")
	t.Setenv(EnvTLSVerify, "1")

	endpoint, err := FromEnvironment()
	if err != nil {
		t.Fatalf("FromEnvironment: %v", err)
	}
	if endpoint.TLS == nil {
		t.Fatal("TLS verify set but endpoint has no TLS config")
	}
	if endpoint.TLS.InsecureSkipVerify {
		t.Error("verify requested but InsecureSkipVerify is true")
	}
}

func TestLoadTLSConfigMissingDirectory(t *testing.T) {
	config, err := LoadTLSConfig(filepath.Join(t.TempDir(), "absent"), true)
	if err != nil {
		t.Fatalf("LoadTLSConfig with absent material: %v", err)
	}
	if config.RootCAs != nil || len(config.Certificates) != 0 {
		t.Error("absent cert dir produced TLS material")
	}
}

func TestLoadTLSConfigRejectsGarbageCA(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ca.pem"), []byte("not a pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadTLSConfig(dir, true)
	var tlsErr *TLSError
	if !errors.As(err, &tlsErr) {
		t.Errorf("err = %v, want *TLSError", err)
	}
}
