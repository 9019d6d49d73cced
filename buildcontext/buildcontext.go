// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildcontext packages a directory tree into the tar stream
// the daemon's build endpoint consumes. Exclusion patterns follow the
// .dockerignore convention; the stream can be compressed with gzip or
// zstd.
package buildcontext

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the encoding applied to the packed context.
type Compression int

const (
	// Uncompressed emits a plain tar stream.
	Uncompressed Compression = iota
	// Gzip wraps the tar stream in gzip.
	Gzip
	// Zstd wraps the tar stream in zstandard.
	Zstd
)

// MediaType is the Content-Type the daemon expects for this encoding.
func (c Compression) MediaType() string {
	switch c {
	case Gzip:
		return "application/x-tar+gzip"
	case Zstd:
		return "application/x-tar+zstd"
	default:
		return "application/x-tar"
	}
}

// Options configures Pack.
type Options struct {
	// Exclude lists .dockerignore-style patterns. Paths matching a
	// pattern are omitted; a pattern prefixed with "!" re-includes
	// paths a previous pattern excluded.
	Exclude []string
	// Compression selects the stream encoding.
	Compression Compression
}

// Pack streams dir as a build context. The returned reader produces
// the archive incrementally; closing it before EOF abandons the
// walk. Paths inside the archive are slash-separated and relative to
// dir.
func Pack(dir string, options Options) (io.ReadCloser, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("buildcontext: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("buildcontext: %s is not a directory", dir)
	}

	matcher, err := newPatternMatcher(options.Exclude)
	if err != nil {
		return nil, err
	}

	pipeReader, pipeWriter := io.Pipe()
	go func() {
		pipeWriter.CloseWithError(writeArchive(pipeWriter, dir, matcher, options.Compression))
	}()
	return pipeReader, nil
}

func writeArchive(w io.Writer, dir string, matcher *patternMatcher, compression Compression) error {
	var closers []io.Closer
	switch compression {
	case Gzip:
		gz := gzip.NewWriter(w)
		closers = append(closers, gz)
		w = gz
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("buildcontext: %w", err)
		}
		closers = append(closers, zw)
		w = zw
	}

	archive := tar.NewWriter(w)
	err := filepath.WalkDir(dir, func(walkPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(dir, walkPath)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}
		name := filepath.ToSlash(relative)
		if matcher.excluded(name) {
			// A directory excluded outright can still contain
			// re-included children; only skip the subtree when no
			// negation pattern could match beneath it.
			if entry.IsDir() && !matcher.hasNegations() {
				return fs.SkipDir
			}
			return nil
		}
		return writeEntry(archive, walkPath, name, entry)
	})
	if err != nil {
		return fmt.Errorf("buildcontext: packing %s: %w", dir, err)
	}
	if err := archive.Close(); err != nil {
		return fmt.Errorf("buildcontext: %w", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			return fmt.Errorf("buildcontext: %w", err)
		}
	}
	return nil
}

func writeEntry(archive *tar.Writer, fsPath, name string, entry fs.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(fsPath); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	if err := archive.WriteHeader(header); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	file, err := os.Open(fsPath)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(archive, file); err != nil {
		return fmt.Errorf("reading %s: %w", fsPath, err)
	}
	return nil
}

// ReadIgnoreFile parses dir's .dockerignore. A missing file yields no
// patterns.
func ReadIgnoreFile(dir string) ([]string, error) {
	file, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("buildcontext: %w", err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("buildcontext: reading .dockerignore: %w", err)
	}
	return patterns, nil
}

// patternMatcher evaluates exclusion patterns in order; the last
// matching pattern wins, so a trailing negation re-includes a path.
type patternMatcher struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern string
	negate  bool
}

func newPatternMatcher(patterns []string) (*patternMatcher, error) {
	matcher := &patternMatcher{}
	for _, raw := range patterns {
		pattern := path.Clean(strings.TrimSpace(raw))
		if pattern == "." || pattern == "" {
			continue
		}
		negate := false
		if strings.HasPrefix(pattern, "!") {
			negate = true
			pattern = path.Clean(pattern[1:])
			if pattern == "." || pattern == "" {
				continue
			}
		}
		if _, err := path.Match(pattern, "probe"); err != nil {
			return nil, fmt.Errorf("buildcontext: invalid pattern %q: %w", raw, err)
		}
		matcher.patterns = append(matcher.patterns, ignorePattern{pattern: pattern, negate: negate})
	}
	return matcher, nil
}

func (m *patternMatcher) hasNegations() bool {
	for _, p := range m.patterns {
		if p.negate {
			return true
		}
	}
	return false
}

func (m *patternMatcher) excluded(name string) bool {
	excluded := false
	for _, p := range m.patterns {
		if matchesPattern(p.pattern, name) {
			excluded = !p.negate
		}
	}
	return excluded
}

// matchesPattern applies one pattern to a slash path. A pattern
// matches the path itself and everything beneath it; "**" segments
// match any number of directories.
func matchesPattern(pattern, name string) bool {
	patternParts := strings.Split(pattern, "/")
	nameParts := strings.Split(name, "/")
	return matchSegments(patternParts, nameParts)
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			// "**" absorbs zero or more leading segments.
			for skip := 0; skip <= len(name); skip++ {
				if matchSegments(pattern[1:], name[skip:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], name[0])
		if err != nil || !ok {
			return false
		}
		pattern = pattern[1:]
		name = name[1:]
	}
	// Pattern exhausted: a match on a directory covers its contents.
	return true
}
