// Package inject implements the fault injector (C5): a single-shot state
// machine that watches the access driver's instruction counter against a
// scheduled trigger and, once reached, corrupts one word of a chosen cache
// line by reporting its effective address to an external collaborator.
package inject

import (
	"errors"

	"github.com/byuccl/qemu/cache"
)

// State is the injector's lifecycle state.
type State uint8

const (
	// Armed means the injector is still waiting for its trigger.
	Armed State = iota
	// Fired means the injector has already corrupted its target and is
	// inert for the remainder of the run.
	Fired
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Fired {
		return "fired"
	}
	return "armed"
}

// Plan is the injection plan received from the collaborator: fire once
// insn_count reaches SleepCycles, then corrupt WordInBlock's word of the
// line resident at (Row, Way) in Target.
type Plan struct {
	SleepCycles uint64
	Target      cache.Target
	Row         uint32
	Way         uint32
	WordInBlock uint32
}

// ErrRangeError is returned by Arm or NotifyInsnRetired when Row, Way or WordInBlock is
// out of range for the target cache. The injector stays Armed so the
// collaborator can retry with a corrected plan.
var ErrRangeError = errors.New("inject: row/way/word_in_block out of range for the target cache")

// ErrInvalidSlot is returned by NotifyInsnRetired when the trigger condition is met but
// the targeted line was never filled (or was invalidated) and so has no
// address to report. The injector stays Armed; the collaborator decides
// whether to retry.
var ErrInvalidSlot = errors.New("inject: injection target cache line is not valid")

// Result is the (insn_count, addr) pair emitted on a successful fire.
type Result struct {
	InsnCount uint64
	Addr      uint32
}

// Injector is the single-shot ARMED/FIRED state machine. The zero value is
// not usable; construct with New.
type Injector struct {
	hierarchy *cache.Hierarchy
	plan      Plan
	state     State
	armed     bool
}

// New constructs an Injector with no plan loaded; it will not fire until
// Arm succeeds.
func New(h *cache.Hierarchy) *Injector {
	return &Injector{hierarchy: h, state: Armed}
}

// Arm validates and loads a new plan. It fails with ErrRangeError without
// changing state if the plan's row/way/word_in_block is out of range for
// the target cache.
func (j *Injector) Arm(p Plan) error {
	c := j.hierarchy.Cache(p.Target)
	if c == nil || c.ValidateInjection(p.Row, p.Way, p.WordInBlock) != cache.ValidationOK {
		return ErrRangeError
	}
	j.plan = p
	j.armed = true
	j.state = Armed
	return nil
}

// State reports the injector's current lifecycle state.
func (j *Injector) State() State {
	return j.state
}

// NotifyInsnRetired is called once per retired instruction (typically from
// driver.Driver's OnRetire hook). It is a no-op if the injector has already
// fired, has no plan loaded, or insnCount has not yet reached the plan's
// trigger. On the triggering call it fires: ErrInvalidSlot or
// ErrRangeError leave the injector Armed for a possible retry; any other
// return is the corrupted (insn_count, addr) pair, after which the
// injector is permanently Fired.
func (j *Injector) NotifyInsnRetired(insnCount uint64) (*Result, error) {
	if j.state == Fired || !j.armed {
		return nil, nil
	}
	if insnCount < j.plan.SleepCycles {
		return nil, nil
	}

	c := j.hierarchy.Cache(j.plan.Target)
	if c == nil || c.ValidateInjection(j.plan.Row, j.plan.Way, j.plan.WordInBlock) != cache.ValidationOK {
		return nil, ErrRangeError
	}
	if !c.IsBlockValid(j.plan.Row, j.plan.Way) {
		return nil, ErrInvalidSlot
	}

	base := c.GetAddr(j.plan.Row, j.plan.Way)
	addr := base + j.plan.WordInBlock*4

	j.state = Fired
	return &Result{InsnCount: insnCount, Addr: addr}, nil
}
