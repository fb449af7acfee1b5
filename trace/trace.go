// Package trace implements the trace ingestion & host harness (C6): it
// reads a recorded instruction/memory-event trace — a stand-in for the
// binary-translation host's live instrumentation — and replays it through
// the exact same driver.Driver entry points a real QEMU TCG plugin would
// call (OnInsnExec, OnMemAccess).
//
// The on-disk format is a plain line-oriented text format so traces are
// easy to hand-author for tests and easy to generate from any host:
//
//	I <vaddr-hex> <raw-hex8>
//	M <vaddr-hex> <L|S|X>
//
// where M's direction is L for a load, S for a store, or X for a combined
// store-then-load (a swap). Lines are replayed in file
// order; each event's sequence number is simply its position in that
// order, there is no separate sequence field on the wire.
//
// A second, companion file carries guest register snapshots in the format
// the access driver's RegisterReader seam needs:
//
//	R <index> <hex32>
//
// Each line is consumed, in order, the first time the driver asks for that
// register while replaying the main trace — see RegisterStream.
package trace

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/byuccl/qemu/insts"
)

// EventKind discriminates the two recorded event shapes.
type EventKind uint8

const (
	EventInsnExec EventKind = iota
	EventMemAccess
)

// Event is one recorded trace entry.
type Event struct {
	Seq  uint64
	Kind EventKind
	Addr uint32
	Raw  [4]byte         // EventInsnExec only
	Dir  insts.Direction // EventMemAccess only
}

// Reader parses trace events from an io.Reader one line at a time.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	seq     uint64
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next event, or io.EOF once the input is exhausted.
// Blank lines and lines starting with '#' are skipped.
func (rd *Reader) Next() (Event, error) {
	for rd.scanner.Scan() {
		rd.line++
		line := strings.TrimSpace(rd.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ev, err := parseLine(line, rd.line)
		if err != nil {
			return Event{}, err
		}
		rd.seq++
		ev.Seq = rd.seq
		return ev, nil
	}
	if err := rd.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("trace: reading line %d: %w", rd.line+1, err)
	}
	return Event{}, io.EOF
}

func parseLine(line string, lineNo int) (Event, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Event{}, fmt.Errorf("trace: line %d: expected 3 fields, got %d", lineNo, len(fields))
	}

	addr, err := parseHexAddr(fields[1])
	if err != nil {
		return Event{}, fmt.Errorf("trace: line %d: bad address: %w", lineNo, err)
	}

	switch fields[0] {
	case "I":
		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != 4 {
			return Event{}, fmt.Errorf("trace: line %d: bad raw instruction bytes %q", lineNo, fields[2])
		}
		var rawArr [4]byte
		copy(rawArr[:], raw)
		return Event{Kind: EventInsnExec, Addr: addr, Raw: rawArr}, nil

	case "M":
		dir, err := parseDirection(fields[2])
		if err != nil {
			return Event{}, fmt.Errorf("trace: line %d: %w", lineNo, err)
		}
		return Event{Kind: EventMemAccess, Addr: addr, Dir: dir}, nil

	default:
		return Event{}, fmt.Errorf("trace: line %d: unknown event kind %q", lineNo, fields[0])
	}
}

func parseHexAddr(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

func parseDirection(s string) (insts.Direction, error) {
	switch strings.ToUpper(s) {
	case "L":
		return insts.Load, nil
	case "S":
		return insts.Store, nil
	case "X":
		return insts.LoadStore, nil
	default:
		return insts.DirNone, fmt.Errorf("unknown direction %q", s)
	}
}
