// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/stevedore-project/stevedore/lib/codec"
)

// sendPacket ships one file-sync packet inside the invocation's data
// stream.
func (d *testDaemon) sendPacket(id uint32, packet Packet) {
	d.t.Helper()
	encoded, err := codec.Marshal(packet)
	if err != nil {
		d.t.Fatalf("encoding packet: %v", err)
	}
	d.sendData(id, encoded)
}

// readPacket reads the next file-sync packet from invocation id.
func (d *testDaemon) readPacket(id uint32) Packet {
	d.t.Helper()
	raw := d.readData(id)
	var packet Packet
	if err := codec.Unmarshal(raw, &packet); err != nil {
		d.t.Fatalf("decoding packet: %v", err)
	}
	return packet
}

// syncFixture creates a three-file tree and a session serving it under
// MethodFileSync.
func syncFixture(t *testing.T) (*testDaemon, map[string]string) {
	t.Helper()
	files := map[string]string{
		"alpha.txt":   "alpha contents",
		"beta.txt":    "beta contents",
		"sub/gamma.go": "package gamma\n",
	}
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	session := newTestSession(t)
	session.Register(MethodFileSync, &FileSyncProvider{Root: root})
	daemon, _, _ := serveSession(t, session)
	return daemon, files
}

// readListing consumes STAT packets up to and including the empty
// terminator, asserting ids are assigned in emission order.
func readListing(t *testing.T, daemon *testDaemon, invocation uint32) []FileStat {
	t.Helper()
	var stats []FileStat
	for {
		packet := daemon.readPacket(invocation)
		if packet.Kind != PacketStat {
			t.Fatalf("packet kind = %s, want STAT", packet.Kind)
		}
		if packet.Stat == nil {
			if packet.ID != uint32(len(stats)) {
				t.Fatalf("terminator id = %d, want %d", packet.ID, len(stats))
			}
			return stats
		}
		if packet.ID != uint32(len(stats)) {
			t.Fatalf("stat id = %d, want emission index %d", packet.ID, len(stats))
		}
		stats = append(stats, *packet.Stat)
	}
}

// readContent consumes DATA packets up to FIN and returns the
// reassembled bytes.
func readContent(t *testing.T, daemon *testDaemon, invocation, transfer uint32) []byte {
	t.Helper()
	var content []byte
	for {
		packet := daemon.readPacket(invocation)
		switch packet.Kind {
		case PacketData:
			if packet.ID != transfer {
				t.Fatalf("DATA for transfer %d, want %d", packet.ID, transfer)
			}
			content = append(content, packet.Data...)
		case PacketFin:
			if packet.ID != transfer {
				t.Fatalf("FIN for transfer %d, want %d", packet.ID, transfer)
			}
			return content
		default:
			t.Fatalf("packet kind = %s, want DATA or FIN", packet.Kind)
		}
	}
}

func TestFileSyncListing(t *testing.T) {
	daemon, _ := syncFixture(t)

	daemon.invoke(1, MethodFileSync)
	daemon.sendPacket(1, Packet{Kind: PacketReq, Pattern: "/"})

	stats := readListing(t, daemon, 1)
	// Four entries in lexical order: the sub directory sorts between
	// the two root files and its child follows it.
	want := []string{"alpha.txt", "beta.txt", "sub", "sub/gamma.go"}
	if len(stats) != len(want) {
		t.Fatalf("listed %d entries, want %d", len(stats), len(want))
	}
	for i, stat := range stats {
		if stat.Path != want[i] {
			t.Errorf("entry %d = %s, want %s", i, stat.Path, want[i])
		}
	}

	// Regular files carry a checksum; directories do not.
	if len(stats[0].Checksum) == 0 {
		t.Error("alpha.txt has no checksum")
	}
	if len(stats[2].Checksum) != 0 {
		t.Error("directory sub has a checksum")
	}

	wantSum := blake3.Sum256([]byte("alpha contents"))
	if !bytes.Equal(stats[0].Checksum, wantSum[:]) {
		t.Error("alpha.txt checksum mismatch")
	}

	daemon.sendClose(1)
	daemon.readClose(1)
}

func TestFileSyncContentByIndex(t *testing.T) {
	daemon, files := syncFixture(t)

	daemon.invoke(1, MethodFileSync)
	daemon.sendPacket(1, Packet{Kind: PacketReq, Pattern: "/"})
	stats := readListing(t, daemon, 1)

	// Index 1 is beta.txt per the listing order.
	daemon.sendPacket(1, Packet{Kind: PacketReq, ID: 1})
	content := readContent(t, daemon, 1, 1)
	if string(content) != files["beta.txt"] {
		t.Fatalf("transfer 1 content = %q, want %q", content, files["beta.txt"])
	}
	if int64(len(content)) != stats[1].Size {
		t.Fatalf("content length %d does not match stat size %d", len(content), stats[1].Size)
	}

	daemon.sendClose(1)
	daemon.readClose(1)
}

// Content packets naming an index that was never stat'd abort only
// that transfer. The invocation and the session stay usable.
func TestFileSyncUnknownIndexIsScoped(t *testing.T) {
	daemon, files := syncFixture(t)

	daemon.invoke(1, MethodFileSync)
	daemon.sendPacket(1, Packet{Kind: PacketReq, Pattern: "/"})
	readListing(t, daemon, 1)

	daemon.sendPacket(1, Packet{Kind: PacketData, ID: 17, Data: []byte("bogus")})
	errPacket := daemon.readPacket(1)
	if errPacket.Kind != PacketErr || errPacket.ID != 17 {
		t.Fatalf("got %s for id %d, want ERR for id 17", errPacket.Kind, errPacket.ID)
	}
	if !strings.Contains(errPacket.Message, "never stat'd") {
		t.Fatalf("ERR message %q does not explain the unknown index", errPacket.Message)
	}

	// A REQ for an index beyond the listing gets the same treatment.
	daemon.sendPacket(1, Packet{Kind: PacketReq, ID: 17})
	errPacket = daemon.readPacket(1)
	if errPacket.Kind != PacketErr || errPacket.ID != 17 {
		t.Fatalf("got %s for id %d, want ERR for id 17", errPacket.Kind, errPacket.ID)
	}

	// Valid transfers still work afterwards.
	daemon.sendPacket(1, Packet{Kind: PacketReq, ID: 0})
	content := readContent(t, daemon, 1, 0)
	if string(content) != files["alpha.txt"] {
		t.Fatalf("transfer 0 content = %q, want %q", content, files["alpha.txt"])
	}

	daemon.sendClose(1)
	daemon.readClose(1)
}

func TestFileSyncPatternFilter(t *testing.T) {
	daemon, _ := syncFixture(t)

	daemon.invoke(1, MethodFileSync)
	daemon.sendPacket(1, Packet{Kind: PacketReq, Pattern: "*.txt"})
	stats := readListing(t, daemon, 1)

	want := []string{"alpha.txt", "beta.txt"}
	if len(stats) != len(want) {
		t.Fatalf("listed %d entries, want %d", len(stats), len(want))
	}
	for i, stat := range stats {
		if stat.Path != want[i] {
			t.Errorf("entry %d = %s, want %s", i, stat.Path, want[i])
		}
	}

	daemon.sendClose(1)
	daemon.readClose(1)
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, relative string
		want              bool
	}{
		{"", "any/path", true},
		{"/", "any/path", true},
		{".", "file.go", true},
		{"sub/", "sub/child.go", true},
		{"sub/", "sub", true},
		{"sub/", "other/child.go", false},
		{"*.go", "main.go", true},
		{"*.go", "pkg/util.go", true}, // base-name match
		{"pkg/*.go", "pkg/util.go", true},
		{"pkg/*.go", "other/util.go", false},
	}
	for _, c := range cases {
		if got := matchPattern(c.pattern, c.relative); got != c.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", c.pattern, c.relative, got, c.want)
		}
	}
}
