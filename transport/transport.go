// Package transport implements the collaborator transport (C7): a TCP
// line protocol that carries an injection plan in from the external
// collaborator and the fired (insn_count, addr) pair back out, plus a
// textual stats report at teardown.
//
// Injection input line (decimal fields, §6):
//
//	<sleep_cycles> <row> <way> <word_in_block> <cache_name>
//
// cache_name is one of "icache", "dcache", "l2cache". Injection output is
// two framed tokens, each 0x%08X: the actual insn_count at fire, then the
// target byte address.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/rs/xid"

	"github.com/byuccl/qemu/cache"
	"github.com/byuccl/qemu/inject"
)

// ParsePlan parses one injection-input line into an inject.Plan.
func ParsePlan(line string) (inject.Plan, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return inject.Plan{}, fmt.Errorf("transport: expected 5 fields, got %d", len(fields))
	}

	sleep, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return inject.Plan{}, fmt.Errorf("transport: bad sleep_cycles: %w", err)
	}
	row, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return inject.Plan{}, fmt.Errorf("transport: bad row: %w", err)
	}
	way, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return inject.Plan{}, fmt.Errorf("transport: bad way: %w", err)
	}
	word, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return inject.Plan{}, fmt.Errorf("transport: bad word_in_block: %w", err)
	}

	var target cache.Target
	switch fields[4] {
	case "icache":
		target = cache.TargetI
	case "dcache":
		target = cache.TargetD
	case "l2cache":
		target = cache.TargetL2
	default:
		return inject.Plan{}, fmt.Errorf("transport: unknown cache_name %q", fields[4])
	}

	return inject.Plan{
		SleepCycles: sleep,
		Target:      target,
		Row:         uint32(row),
		Way:         uint32(way),
		WordInBlock: uint32(word),
	}, nil
}

// WriteFired writes the two-token injection output: insn_count then addr,
// each framed as its own line in 0x%08X form.
func WriteFired(w io.Writer, insnCount uint64, addr uint32) error {
	if _, err := fmt.Fprintf(w, "0x%08X\n", insnCount); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "0x%08X\n", addr)
	return err
}

// Conn wraps one accepted collaborator connection with the line protocol's
// read/write helpers. Each Conn carries a generated ID so collaborator
// sessions can be told apart in logs.
type Conn struct {
	ID  xid.ID
	rw  io.ReadWriter
	buf *bufio.Reader
}

// NewConn wraps rw (typically a net.Conn) as a Conn.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{ID: xid.New(), rw: rw, buf: bufio.NewReader(rw)}
}

// ReadPlan reads one line and parses it as an injection plan.
func (c *Conn) ReadPlan() (inject.Plan, error) {
	line, err := c.buf.ReadString('\n')
	if err != nil && line == "" {
		return inject.Plan{}, err
	}
	return ParsePlan(strings.TrimSpace(line))
}

// WriteFired reports a fired injection back to the collaborator.
func (c *Conn) WriteFired(insnCount uint64, addr uint32) error {
	return WriteFired(c.rw, insnCount, addr)
}

// WriteOK acknowledges a successfully validated and armed injection plan.
func (c *Conn) WriteOK() error {
	_, err := fmt.Fprintln(c.rw, "OK")
	return err
}

// WriteRangeError reports a plan validation failure to the collaborator as
// "RANGE_ERROR <reason>", in place of the OK acknowledgment.
func (c *Conn) WriteRangeError(err error) error {
	_, werr := fmt.Fprintf(c.rw, "RANGE_ERROR %s\n", err)
	return werr
}

// WriteStats writes the teardown stats report in the field order named by
// §6: per cache load_hits, load_misses, load_miss_rate, store_hits,
// store_misses, store_miss_rate, compulsory_misses, evictions; then the
// driver-global insn_count, load_count, store_count.
func WriteStats(w io.Writer, stats cache.Stats) error {
	writeCache := func(name string, c cache.Counters) error {
		_, err := fmt.Fprintf(w, "%s load_hits=%d load_misses=%d load_miss_rate=%.4f "+
			"store_hits=%d store_misses=%d store_miss_rate=%.4f compulsory_misses=%d evictions=%d\n",
			name, c.LoadHits, c.LoadMisses, c.LoadMissRate(),
			c.StoreHits, c.StoreMisses, c.StoreMissRate(), c.CompulsoryMisses, c.Evictions)
		return err
	}

	if err := writeCache("icache", stats.I); err != nil {
		return err
	}
	if err := writeCache("dcache", stats.D); err != nil {
		return err
	}
	if err := writeCache("l2cache", stats.L2); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "global insn_count=%d load_count=%d store_count=%d\n",
		stats.InsnCount, stats.LoadCount, stats.StoreCount)
	return err
}

// Listen opens a TCP listener at addr. Callers Accept and wrap each
// connection with NewConn.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
