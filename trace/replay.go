package trace

import (
	"fmt"
	"io"

	"github.com/byuccl/qemu/driver"
)

// Replay feeds every event from r through d's entry points, in file order,
// standing in for a live binary-translation host. It returns the number of
// events replayed. A malformed trace line aborts replay and returns the
// parse error; a decode error from driver.OnInsnExec (e.g. a non-ARM-sized
// instruction word, or an exhausted register stream) is not fatal and
// replay continues, mirroring §4.4's "Failure semantics" — the driver
// itself already degraded gracefully.
func Replay(r io.Reader, d *driver.Driver) (uint64, error) {
	rd := NewReader(r)
	var n uint64

	for {
		ev, err := rd.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		switch ev.Kind {
		case EventInsnExec:
			_ = d.OnInsnExec(ev.Addr, ev.Raw[:]) // decode/register errors are non-fatal, see doc comment
		case EventMemAccess:
			d.OnMemAccess(ev.Addr, ev.Dir)
		default:
			return n, fmt.Errorf("trace: event %d: unhandled kind %v", ev.Seq, ev.Kind)
		}
		n++
	}
}
