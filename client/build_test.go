// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stevedore-project/stevedore/lib/testutil"
	"github.com/stevedore-project/stevedore/session"
	"github.com/stevedore-project/stevedore/stream"
)

// buildContextOf returns a tar stream holding a single Dockerfile.
func buildContextOf(t *testing.T, dockerfile string) io.Reader {
	t.Helper()
	var buffer bytes.Buffer
	archive := tar.NewWriter(&buffer)
	if err := archive.WriteHeader(&tar.Header{Name: "Dockerfile", Mode: 0o644, Size: int64(len(dockerfile))}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := archive.Write([]byte(dockerfile)); err != nil {
		t.Fatalf("tar write: %v", err)
	}
	if err := archive.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return &buffer
}

func TestImageBuild(t *testing.T) {
	mux, _ := versionMux("1.43")
	mux.HandleFunc("/v1.43/build", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if got := query["t"]; len(got) != 2 || got[0] != "app:latest" || got[1] != "app:v1" {
			t.Errorf("tags = %v", got)
		}
		if query.Get("dockerfile") != "build/Dockerfile" {
			t.Errorf("dockerfile = %q", query.Get("dockerfile"))
		}
		if query.Get("nocache") != "1" {
			t.Errorf("nocache = %q", query.Get("nocache"))
		}
		if r.Header.Get("Content-Type") != "application/x-tar" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}

		// The context must arrive as a readable tar stream.
		archive := tar.NewReader(r.Body)
		header, err := archive.Next()
		if err != nil || header.Name != "Dockerfile" {
			t.Errorf("context entry = %v, %v", header, err)
		}

		fmt.Fprintln(w, `{"stream":"Step 1/1 : FROM scratch\n"}`)
		fmt.Fprintln(w, `{"aux":{"ID":"sha256:deadbeef"}}`)
	})
	client := testClient(t, mux, Options{})

	build, err := client.ImageBuild(context.Background(), BuildOptions{
		Tags:       []string{"app:latest", "app:v1"},
		Dockerfile: "build/Dockerfile",
		NoCache:    true,
		Context:    buildContextOf(t, "FROM scratch\n"),
	})
	if err != nil {
		t.Fatalf("ImageBuild: %v", err)
	}
	defer build.Close()

	first, err := build.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Stream != "Step 1/1 : FROM scratch\n" {
		t.Fatalf("first message = %+v", first)
	}
	second, err := build.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(second.Aux) == 0 {
		t.Fatalf("second message = %+v, want aux payload", second)
	}
	if _, err := build.Next(); err != io.EOF {
		t.Fatalf("Next after last = %v, want io.EOF", err)
	}
}

func TestImageBuildDaemonFailure(t *testing.T) {
	mux, _ := versionMux("1.43")
	mux.HandleFunc("/v1.43/build", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"stream":"Step 1/2 : FROM scratch\n"}`)
		fmt.Fprintln(w, `{"error":"executor failed"}`)
	})
	client := testClient(t, mux, Options{})

	build, err := client.ImageBuild(context.Background(), BuildOptions{Context: buildContextOf(t, "FROM scratch\n")})
	if err != nil {
		t.Fatalf("ImageBuild: %v", err)
	}
	defer build.Close()

	if _, err := build.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	_, err = build.Next()
	var messageErr *stream.JSONMessageError
	if !errors.As(err, &messageErr) {
		t.Fatalf("Next = %v, want *stream.JSONMessageError", err)
	}
	if messageErr.Message != "executor failed" {
		t.Fatalf("message = %q", messageErr.Message)
	}
}

func TestImageBuildRejectedStatus(t *testing.T) {
	mux, _ := versionMux("1.43")
	mux.HandleFunc("/v1.43/build", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, `{"message":"dockerfile parse error"}`)
	})
	client := testClient(t, mux, Options{})

	_, err := client.ImageBuild(context.Background(), BuildOptions{Context: buildContextOf(t, "FROM scratch\n")})
	var daemonErr *DaemonError
	if !errors.As(err, &daemonErr) {
		t.Fatalf("ImageBuild = %v, want *DaemonError", err)
	}
	if daemonErr.Message != "dockerfile parse error" {
		t.Fatalf("message = %q", daemonErr.Message)
	}
}

// A build with an attached session opens the session upgrade before the
// build request and tears the session down on Close.
func TestImageBuildWithSession(t *testing.T) {
	mux, _ := versionMux("1.43")

	sessionStarted := make(chan string, 1)
	sessionConnClosed := make(chan struct{})
	mux.HandleFunc("/v1.43/session", func(w http.ResponseWriter, r *http.Request) {
		sessionStarted <- r.Header.Get(headerSessionID)
		hijacker, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, buffered, err := hijacker.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		fmt.Fprint(conn, "HTTP/1.1 101 UPGRADED\r\nConnection: Upgrade\r\nUpgrade: h2c\r\n\r\n")
		go func() {
			defer close(sessionConnClosed)
			defer conn.Close()
			// Hold the control stream open until the client hangs up.
			io.Copy(io.Discard, buffered)
		}()
	})
	mux.HandleFunc("/v1.43/build", func(w http.ResponseWriter, r *http.Request) {
		// The session must be live before the build is handled.
		select {
		case <-sessionStarted:
		default:
			t.Error("build request arrived before the session upgrade")
		}
		if r.URL.Query().Get("session") == "" {
			t.Error("build request carries no session id")
		}
		fmt.Fprintln(w, `{"stream":"done\n"}`)
	})
	client := testClient(t, mux, Options{})

	buildSession, err := session.New(nil)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	buildSession.Register(session.MethodAuth, &session.AuthProvider{})

	build, err := client.ImageBuild(context.Background(), BuildOptions{
		Context: buildContextOf(t, "FROM scratch\n"),
		Session: buildSession,
	})
	if err != nil {
		t.Fatalf("ImageBuild: %v", err)
	}

	if _, err := build.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := build.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := build.SessionErr(); err != nil {
		t.Fatalf("SessionErr: %v", err)
	}
	testutil.RequireClosed(t, sessionConnClosed, 5*time.Second, "waiting for session teardown")
}
