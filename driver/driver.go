// Package driver implements the access-driver controller (C4): it glues
// guest-visible events reported by a binary-translation host — instruction
// execution at an address, memory access at a virtual address, and
// cache-control coprocessor instructions — into operations on a
// cache.Hierarchy, and maintains the global instruction/load/store
// counters the fault injector and stats report both depend on.
//
// The host's actual callback-registration plumbing is out of scope (see
// SPEC_FULL.md §1); this package exposes the same two entry points a real
// QEMU TCG plugin would bind per instruction — OnInsnExec and OnMemAccess —
// so that both a live plugin and the offline trace package can drive the
// same code path.
package driver

import (
	"github.com/byuccl/qemu/cache"
	"github.com/byuccl/qemu/insts"
)

// RegisterReader abstracts reading a guest general-purpose register by
// index. The core never assumes a particular host's CPU struct layout;
// DCISW's set/way operand comes from whatever register the decoded Rt
// field names, read through this seam. A non-nil error means the
// implementation could not supply the register (e.g. an exhausted trace
// register stream), which OnInsnExec reports rather than guessing a value.
type RegisterReader interface {
	ReadRegister(index int) (uint32, error)
}

// TextRange is the inclusive-start, exclusive-end .text range configured at
// init. Addresses outside it are never treated as instruction fetches.
type TextRange struct {
	Start, End uint32
}

// Contains reports whether addr falls within the range.
func (r TextRange) Contains(addr uint32) bool {
	return addr >= r.Start && addr < r.End
}

// RetireFunc is invoked once per retired in-range instruction, after the
// icache access but before any cache-control dispatch. The fault injector
// registers one of these to learn the running instruction count.
type RetireFunc func(insnCount uint64)

// Driver is the access-driver controller. The zero value is not usable;
// construct with New.
type Driver struct {
	Hierarchy *cache.Hierarchy
	Decoder   *insts.Decoder
	Regs      RegisterReader
	Text      TextRange

	// ArmIdentified gates cache-control decoding (§6: "An ARM
	// identification string is required to enable cache-control
	// decoding"). When false, DCISW/ICIALLU dispatch is skipped even if
	// the decoder recognizes them — mirroring a non-ARM guest target.
	ArmIdentified bool

	InsnCount  uint64
	LoadCount  uint64
	StoreCount uint64

	OnRetire RetireFunc
}

// New constructs a Driver bound to hierarchy h, reading guest registers
// through regs, treating [textStart, textEnd) as the instruction range.
func New(h *cache.Hierarchy, regs RegisterReader, textStart, textEnd uint32) *Driver {
	return &Driver{
		Hierarchy:     h,
		Decoder:       insts.NewDecoder(),
		Regs:          regs,
		Text:          TextRange{Start: textStart, End: textEnd},
		ArmIdentified: true,
	}
}

// OnInsnExec handles one instruction-execute event: vaddr is the guest
// virtual address the instruction retired at, raw its encoding (expected to
// be exactly 4 bytes for an ARM v7-A word).
//
// Step 3 of §4.4 (insn_count increment, icache_load, injector notification)
// runs whenever vaddr falls in .text, regardless of whether raw decodes —
// a size mismatch only suppresses cache-control dispatch (steps 5/6), it
// never under-counts fetches.
func (d *Driver) OnInsnExec(vaddr uint32, raw []byte) error {
	inText := d.Text.Contains(vaddr)
	if inText {
		d.InsnCount++
		d.Hierarchy.ICacheLoad(vaddr)
		if d.OnRetire != nil {
			d.OnRetire(d.InsnCount)
		}
	}

	if !d.ArmIdentified {
		return nil
	}

	inst, err := d.Decoder.Decode(raw)
	if err != nil {
		return err
	}

	if inst.IsDCISW() {
		rt, err := d.Regs.ReadRegister(int(inst.Rt))
		if err != nil {
			return err
		}
		set := (rt >> 4) & 0x3FF // bits [13:4]
		way := rt >> 30          // bits [31:30]
		d.Hierarchy.DCacheInvalidateBlock(set, way)
	} else if inst.IsICIALLU() {
		d.Hierarchy.ICacheInvalidateAll()
	}

	return nil
}

// OnMemAccess handles one memory-access event: vaddr is the effective
// access address, dir the access direction decoded from the instruction
// (Load, Store, or LoadStore for a swap, which issues the store first and
// then the load). Addresses inside
// .text are skipped — they were already accounted for as instruction
// fetches by OnInsnExec.
func (d *Driver) OnMemAccess(vaddr uint32, dir insts.Direction) {
	if d.Text.Contains(vaddr) {
		return
	}

	switch dir {
	case insts.Load:
		d.LoadCount++
		d.Hierarchy.DCacheLoad(vaddr)
	case insts.Store:
		d.StoreCount++
		d.Hierarchy.DCacheStore(vaddr)
	case insts.LoadStore:
		d.LoadCount++
		d.StoreCount++
		d.Hierarchy.DCacheStore(vaddr)
		d.Hierarchy.DCacheLoad(vaddr)
	}
}

// Stats returns the driver-global counters that accompany the per-cache
// stats snapshot at teardown.
func (d *Driver) Stats() (insnCount, loadCount, storeCount uint64) {
	return d.InsnCount, d.LoadCount, d.StoreCount
}
