// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"testing"
)

func TestParseAPIVersion(t *testing.T) {
	cases := []struct {
		input string
		want  APIVersion
	}{
		{"1.24", APIVersion{Major: 1, Minor: 24}},
		{"1.43", APIVersion{Major: 1, Minor: 43}},
		{"2.0", APIVersion{Major: 2, Minor: 0}},
		{"0.9", APIVersion{Major: 0, Minor: 9}},
	}
	for _, c := range cases {
		got, err := ParseAPIVersion(c.input)
		if err != nil {
			t.Errorf("ParseAPIVersion(%q): %v", c.input, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseAPIVersion(%q) = %v, want %v", c.input, got, c.want)
		}
		if got.String() != c.input {
			t.Errorf("ParseAPIVersion(%q).String() = %q", c.input, got.String())
		}
	}
}

func TestParseAPIVersionRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "1", "1.", ".43", "1.43.0", "v1.43", "1.-2", "one.two"} {
		if _, err := ParseAPIVersion(input); err == nil {
			t.Errorf("ParseAPIVersion(%q) succeeded, want error", input)
		}
	}
}

func TestAPIVersionLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"1.24", "1.43", true},
		{"1.43", "1.24", false},
		{"1.43", "1.43", false},
		{"1.99", "2.0", true},
		{"2.0", "1.99", false},
	}
	for _, c := range cases {
		a, _ := ParseAPIVersion(c.a)
		b, _ := ParseAPIVersion(c.b)
		if got := a.Less(b); got != c.want {
			t.Errorf("%s.Less(%s) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestAPIVersionIsZero(t *testing.T) {
	if !(APIVersion{}).IsZero() {
		t.Error("zero APIVersion not reported as zero")
	}
	if DefaultVersion.IsZero() {
		t.Error("DefaultVersion reported as zero")
	}
}
