// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/stevedore-project/stevedore/lib/codec"
)

// MethodFileSync is the service method name for on-demand directory
// transfer.
const MethodFileSync = "filesync"

// PacketKind tags a file-sync packet.
type PacketKind uint8

const (
	// PacketStat describes one directory entry; an empty PacketStat
	// (no Stat field) terminates the listing.
	PacketStat PacketKind = 0
	// PacketReq asks for a listing (path pattern in Pattern) or, with
	// an ID, for a stat'd entry's content.
	PacketReq PacketKind = 1
	// PacketData carries one chunk of a requested file's bytes.
	PacketData PacketKind = 2
	// PacketFin ends a file's data stream.
	PacketFin PacketKind = 3
	// PacketErr aborts one transfer id without ending the session.
	PacketErr PacketKind = 4
)

// String returns the packet kind's wire name.
func (k PacketKind) String() string {
	switch k {
	case PacketStat:
		return "STAT"
	case PacketReq:
		return "REQ"
	case PacketData:
		return "DATA"
	case PacketFin:
		return "FIN"
	case PacketErr:
		return "ERR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Packet is one file-sync protocol message. Packets ride inside the
// invocation's data stream, CBOR-encoded.
type Packet struct {
	Kind PacketKind `cbor:"kind"`
	// ID is the transfer id: the entry's index in the emitted STAT
	// sequence. Assigned by the responder in stat order and referenced
	// only by that id thereafter.
	ID uint32 `cbor:"id"`
	// Pattern is the listing request's root path or glob (REQ without
	// a transfer target).
	Pattern string `cbor:"pattern,omitempty"`
	// Stat carries entry metadata on STAT packets; nil marks the
	// listing terminator.
	Stat *FileStat `cbor:"stat,omitempty"`
	// Data carries file content on DATA packets.
	Data []byte `cbor:"data,omitempty"`
	// Message carries the failure description on ERR packets.
	Message string `cbor:"message,omitempty"`
}

// FileStat is the metadata sent for one directory entry.
type FileStat struct {
	// Path is the entry's path relative to the sync root, always
	// slash-separated.
	Path string `cbor:"path"`
	// Mode is the entry's file mode bits.
	Mode uint32 `cbor:"mode"`
	// Size is the entry's byte size (0 for directories).
	Size int64 `cbor:"size"`
	// ModTime is the entry's modification time, Unix nanoseconds.
	ModTime int64 `cbor:"modtime"`
	// Checksum is the BLAKE3 digest of a regular file's content,
	// letting the daemon skip unchanged files. Empty for directories.
	Checksum []byte `cbor:"checksum,omitempty"`
}

// dataChunkSize is the payload size of one DATA packet.
const dataChunkSize = 32 * 1024

// FileSyncProvider serves the daemon's on-demand reads of a local
// directory tree during a build. Register under MethodFileSync.
type FileSyncProvider struct {
	// Root is the local directory to expose.
	Root string
}

// Compile-time interface check.
var _ Handler = (*FileSyncProvider)(nil)

// Serve runs the responder side of the packet state machine: answer a
// listing request with ordered STAT packets, then stream content for
// the indices the daemon asks for. Protocol violations referencing an
// index never stat'd are rejected with an ERR for that id only.
func (p *FileSyncProvider) Serve(ctx context.Context, stream *Stream) error {
	var entries []string // index → relative path; fixed by STAT emission order
	listed := false

	for {
		raw, err := stream.Recv(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var packet Packet
		if err := codec.Unmarshal(raw, &packet); err != nil {
			return &ProtocolError{Detail: "undecodable file-sync packet", Err: err}
		}

		switch packet.Kind {
		case PacketReq:
			if !listed && packet.Pattern != "" {
				listing, err := p.list(packet.Pattern)
				if err != nil {
					if sendErr := p.sendErr(stream, packet.ID, err.Error()); sendErr != nil {
						return sendErr
					}
					continue
				}
				entries = listing
				listed = true
				if err := p.sendListing(stream, listing); err != nil {
					return err
				}
				continue
			}
			if int(packet.ID) >= len(entries) {
				if err := p.sendErr(stream, packet.ID, fmt.Sprintf("transfer id %d was never stat'd", packet.ID)); err != nil {
					return err
				}
				continue
			}
			if err := p.sendContent(ctx, stream, packet.ID, entries[packet.ID]); err != nil {
				return err
			}

		case PacketErr:
			// Daemon aborted one transfer; nothing to clean up on the
			// responder side since transfers are sent synchronously.
			continue

		case PacketData, PacketFin:
			// The daemon never sends content to the responder, and
			// content for an id that was never stat'd is a protocol
			// violation either way. Rejected for that id only; the
			// session stays open.
			reason := fmt.Sprintf("unexpected %s packet for id %d", packet.Kind, packet.ID)
			if int(packet.ID) >= len(entries) {
				reason = fmt.Sprintf("%s packet for id %d, which was never stat'd", packet.Kind, packet.ID)
			}
			if err := p.sendErr(stream, packet.ID, reason); err != nil {
				return err
			}

		case PacketStat:
			if err := p.sendErr(stream, packet.ID, "unexpected STAT from requester"); err != nil {
				return err
			}

		default:
			return &ProtocolError{Detail: fmt.Sprintf("unknown file-sync packet kind %d", packet.Kind)}
		}
	}
}

// list walks the root and returns the matching relative paths in a
// stable lexical order; that order fixes each entry's transfer id.
func (p *FileSyncProvider) list(pattern string) ([]string, error) {
	root := p.Root
	var matches []string
	err := filepath.WalkDir(root, func(fullPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(root, fullPath)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}
		relative = filepath.ToSlash(relative)
		if !matchPattern(pattern, relative) {
			return nil
		}
		matches = append(matches, relative)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	// WalkDir is already lexical, but sort anyway: the id assignment
	// must be deterministic even if the walk order ever changes.
	sort.Strings(matches)
	return matches, nil
}

// sendListing emits one STAT per entry in index order, then the empty
// terminator STAT.
func (p *FileSyncProvider) sendListing(stream *Stream, entries []string) error {
	for index, relative := range entries {
		stat, err := p.stat(relative)
		if err != nil {
			if sendErr := p.sendErr(stream, uint32(index), err.Error()); sendErr != nil {
				return sendErr
			}
			continue
		}
		if err := p.sendPacket(stream, Packet{Kind: PacketStat, ID: uint32(index), Stat: stat}); err != nil {
			return err
		}
	}
	return p.sendPacket(stream, Packet{Kind: PacketStat, ID: uint32(len(entries))})
}

// stat builds the metadata for one entry, including the content
// checksum for regular files.
func (p *FileSyncProvider) stat(relative string) (*FileStat, error) {
	fullPath := filepath.Join(p.Root, filepath.FromSlash(relative))
	info, err := os.Lstat(fullPath)
	if err != nil {
		return nil, err
	}

	stat := &FileStat{
		Path:    relative,
		Mode:    uint32(info.Mode()),
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
	}
	if info.Mode().IsRegular() {
		checksum, err := checksumFile(fullPath)
		if err != nil {
			return nil, err
		}
		stat.Checksum = checksum
	}
	return stat, nil
}

// sendContent streams one file's bytes as DATA packets followed by
// FIN. A local read failure aborts only this transfer with ERR.
func (p *FileSyncProvider) sendContent(ctx context.Context, stream *Stream, id uint32, relative string) error {
	file, err := os.Open(filepath.Join(p.Root, filepath.FromSlash(relative)))
	if err != nil {
		return p.sendErr(stream, id, err.Error())
	}
	defer file.Close()

	buffer := make([]byte, dataChunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := file.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if sendErr := p.sendPacket(stream, Packet{Kind: PacketData, ID: id, Data: chunk}); sendErr != nil {
				return sendErr
			}
		}
		if err == io.EOF {
			return p.sendPacket(stream, Packet{Kind: PacketFin, ID: id})
		}
		if err != nil {
			return p.sendErr(stream, id, err.Error())
		}
	}
}

func (p *FileSyncProvider) sendPacket(stream *Stream, packet Packet) error {
	encoded, err := codec.Marshal(packet)
	if err != nil {
		return fmt.Errorf("session: encoding file-sync packet: %w", err)
	}
	return stream.Send(encoded)
}

func (p *FileSyncProvider) sendErr(stream *Stream, id uint32, message string) error {
	return p.sendPacket(stream, Packet{Kind: PacketErr, ID: id, Message: message})
}

// checksumFile computes the BLAKE3 digest of a file's contents.
func checksumFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}

// matchPattern reports whether a relative path matches the listing
// request. "/" or "" matches everything; "dir/" matches the subtree;
// anything else is a path.Match glob applied to the full relative
// path and to its base name.
func matchPattern(pattern, relative string) bool {
	switch pattern {
	case "", "/", ".":
		return true
	}
	pattern = strings.TrimPrefix(pattern, "/")
	if strings.HasSuffix(pattern, "/") {
		return strings.HasPrefix(relative, pattern) || relative == strings.TrimSuffix(pattern, "/")
	}
	if matched, err := path.Match(pattern, relative); err == nil && matched {
		return true
	}
	matched, err := path.Match(pattern, path.Base(relative))
	return err == nil && matched
}
