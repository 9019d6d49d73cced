// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stevedore-project/stevedore/lib/netutil"
)

// DaemonError is a structured error response from the daemon's HTTP
// API. Callers use errors.As to separate daemon-reported application
// errors from transport and protocol failures:
//
//	var daemonErr *client.DaemonError
//	if errors.As(err, &daemonErr) && daemonErr.StatusCode == 404 { ... }
type DaemonError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Message is the daemon's error description.
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("client: daemon error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a daemon 404.
func IsNotFound(err error) bool {
	var daemonErr *DaemonError
	return errors.As(err, &daemonErr) && daemonErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a daemon 409.
func IsConflict(err error) bool {
	var daemonErr *DaemonError
	return errors.As(err, &daemonErr) && daemonErr.StatusCode == http.StatusConflict
}

// checkStatus converts a non-2xx response into a DaemonError,
// consuming the body. The daemon sends {"message": "..."} JSON bodies;
// anything else is used verbatim.
func checkStatus(response *http.Response) error {
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	defer response.Body.Close()

	body := netutil.ErrorBody(response.Body)
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		return &DaemonError{StatusCode: response.StatusCode, Message: envelope.Message}
	}
	return &DaemonError{StatusCode: response.StatusCode, Message: body}
}

// decodeBody JSON-decodes a response body with the standard bound.
func decodeBody(response *http.Response, v any) error {
	if err := netutil.DecodeBody(response.Body, v); err != nil {
		return fmt.Errorf("client: decoding response: %w", err)
	}
	return nil
}
