// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// DefaultVersion is the API version requested when the caller does not
// pin one. Negotiation lowers it to the server's version when the
// server is older.
var DefaultVersion = APIVersion{Major: 1, Minor: 43}

// MinimumVersion is the oldest API version this client understands.
// Negotiating below it fails rather than producing requests the path
// builder cannot express correctly.
var MinimumVersion = APIVersion{Major: 1, Minor: 24}

// APIVersion is a daemon API version. Versions order lexicographically
// by (major, minor).
type APIVersion struct {
	Major int
	Minor int
}

// ParseAPIVersion parses "major.minor" ("1.43").
func ParseAPIVersion(s string) (APIVersion, error) {
	majorField, minorField, found := strings.Cut(s, ".")
	if !found {
		return APIVersion{}, fmt.Errorf("client: API version %q is not major.minor", s)
	}
	major, majorErr := strconv.Atoi(majorField)
	minor, minorErr := strconv.Atoi(minorField)
	if majorErr != nil || minorErr != nil || major < 0 || minor < 0 {
		return APIVersion{}, fmt.Errorf("client: API version %q is not major.minor", s)
	}
	return APIVersion{Major: major, Minor: minor}, nil
}

// String returns the "major.minor" form used in request paths.
func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less reports whether v orders before other.
func (v APIVersion) Less(other APIVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// IsZero reports whether v is the zero value (no version).
func (v APIVersion) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// VersionError reports a failed version negotiation: the server's
// advertisement was unusable or incompatible with the caller's pin.
type VersionError struct {
	Client APIVersion
	Server APIVersion
	Reason string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("client: version negotiation failed (client %s, server %s): %s", e.Client, e.Server, e.Reason)
}

// VersionTooOldError reports a server below MinimumVersion. No
// resource call is attempted against such a server.
type VersionTooOldError struct {
	Server  APIVersion
	Minimum APIVersion
}

func (e *VersionTooOldError) Error() string {
	return fmt.Sprintf("client: server API version %s is below minimum supported %s", e.Server, e.Minimum)
}

// serverVersionInfo is the subset of the daemon's /version response
// negotiation needs.
type serverVersionInfo struct {
	APIVersion    string `json:"ApiVersion"`
	MinAPIVersion string `json:"MinAPIVersion"`
	Version       string `json:"Version"`
	Os            string `json:"Os"`
	Arch          string `json:"Arch"`
}

// negotiate selects the API version per the fixed rule: a pinned
// version must be at most the server version; unpinned takes
// min(DefaultVersion, server). Falls below MinimumVersion ⇒
// VersionTooOldError. The discovery request goes to the unversioned
// /version path so negotiation works against any server age.
func (c *Client) negotiate(ctx context.Context) (APIVersion, error) {
	var info serverVersionInfo
	if err := c.getUnversioned(ctx, "/version", &info); err != nil {
		return APIVersion{}, err
	}

	server, err := ParseAPIVersion(info.APIVersion)
	if err != nil {
		return APIVersion{}, &VersionError{Client: c.pinned, Reason: fmt.Sprintf("server advertised unparseable version %q", info.APIVersion)}
	}
	if server.Less(MinimumVersion) {
		return APIVersion{}, &VersionTooOldError{Server: server, Minimum: MinimumVersion}
	}

	if !c.pinned.IsZero() {
		if server.Less(c.pinned) {
			return APIVersion{}, &VersionError{Client: c.pinned, Server: server, Reason: "pinned version exceeds server version"}
		}
		return c.pinned, nil
	}
	if server.Less(DefaultVersion) {
		return server, nil
	}
	return DefaultVersion, nil
}

// Version returns the negotiated API version, performing discovery on
// first call. The result is cached for the client's lifetime: once
// fixed, every request path uses it.
func (c *Client) Version(ctx context.Context) (APIVersion, error) {
	c.versionMu.Lock()
	defer c.versionMu.Unlock()
	if !c.negotiated.IsZero() {
		return c.negotiated, nil
	}
	negotiated, err := c.negotiate(ctx)
	if err != nil {
		return APIVersion{}, err
	}
	c.negotiated = negotiated
	c.logger.Debug("negotiated daemon API version", "version", negotiated.String())
	return negotiated, nil
}

// ServerVersion fetches the daemon's version description.
func (c *Client) ServerVersion(ctx context.Context) (*ServerVersion, error) {
	var info serverVersionInfo
	if err := c.getUnversioned(ctx, "/version", &info); err != nil {
		return nil, err
	}
	return &ServerVersion{
		Version:    info.Version,
		APIVersion: info.APIVersion,
		Os:         info.Os,
		Arch:       info.Arch,
	}, nil
}

// ServerVersion describes the daemon build.
type ServerVersion struct {
	Version    string
	APIVersion string
	Os         string
	Arch       string
}

// getUnversioned performs a GET on a path outside the version prefix
// and decodes the JSON response.
func (c *Client) getUnversioned(ctx context.Context, path string, v any) error {
	response, err := c.doRaw(ctx, http.MethodGet, path, nil, nil, nil)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if err := checkStatus(response); err != nil {
		return err
	}
	return decodeBody(response, v)
}
