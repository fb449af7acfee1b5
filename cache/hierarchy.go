package cache

import (
	"github.com/tebeka/atexit"

	"github.com/byuccl/qemu/insts"
)

// Target names one of the three cache levels a fault can be injected into.
type Target uint8

const (
	TargetI Target = iota
	TargetD
	TargetL2
)

// String implements fmt.Stringer.
func (t Target) String() string {
	switch t {
	case TargetI:
		return "icache"
	case TargetD:
		return "dcache"
	case TargetL2:
		return "l2cache"
	default:
		return "unknown"
	}
}

// DefaultIConfig, DefaultDConfig and DefaultL2Config are the Cortex-A9 /
// Zynq-7000 defaults named in the component design: a 32 KiB 4-way random
// no-write-allocate I-cache and D-cache forwarding misses into a 512 KiB
// 8-way round-robin write-allocate unified L2.
var (
	DefaultIConfig = Config{Size: 32 * 1024, Associativity: 4, BlockSize: 32, Replace: Random, Allocate: NoWriteAllocate}
	DefaultDConfig = Config{Size: 32 * 1024, Associativity: 4, BlockSize: 32, Replace: Random, Allocate: NoWriteAllocate}
	DefaultL2Config = Config{Size: 512 * 1024, Associativity: 8, BlockSize: 32, Replace: RoundRobin, Allocate: WriteAllocate}
)

// Hierarchy binds the I-cache, D-cache and L2 into the two-level memory
// subsystem the access driver and fault injector drive: first-level misses
// are forwarded to L2, and L2 misses terminate the hierarchy (there is no
// RAM model). Hierarchy owns all three Cache singletons; callers depend on
// this one handle rather than three free-standing globals.
type Hierarchy struct {
	I  *Cache
	D  *Cache
	L2 *Cache
}

// NewHierarchy constructs the three caches from the given configs. An error
// from any one of them (ErrNotPowerOfTwo / ErrSizeMismatch) aborts
// construction; no partial Hierarchy is returned.
func NewHierarchy(iCfg, dCfg, l2Cfg Config) (*Hierarchy, error) {
	i, err := New(iCfg)
	if err != nil {
		return nil, err
	}
	d, err := New(dCfg)
	if err != nil {
		return nil, err
	}
	l2, err := New(l2Cfg)
	if err != nil {
		return nil, err
	}
	return &Hierarchy{I: i, D: d, L2: l2}, nil
}

// NewDefaultHierarchy constructs a Hierarchy using DefaultIConfig,
// DefaultDConfig and DefaultL2Config.
func NewDefaultHierarchy() (*Hierarchy, error) {
	return NewHierarchy(DefaultIConfig, DefaultDConfig, DefaultL2Config)
}

// ICacheLoad services an instruction fetch. A first-level miss is forwarded
// to L2; L2's result (hit or miss) is returned as the overall result.
func (h *Hierarchy) ICacheLoad(addr uint32) Result {
	if h.I.Load(addr) == Hit {
		return Hit
	}
	return h.L2.Load(addr)
}

// DCacheLoad services a data load the same way ICacheLoad services a fetch.
func (h *Hierarchy) DCacheLoad(addr uint32) Result {
	if h.D.Load(addr) == Hit {
		return Hit
	}
	return h.L2.Load(addr)
}

// DCacheStore services a data store, forwarding to L2 on a D-cache miss.
func (h *Hierarchy) DCacheStore(addr uint32) Result {
	if h.D.Store(addr) == Hit {
		return Hit
	}
	return h.L2.Store(addr)
}

// ICacheInvalidateAll implements the ICIALLU cache-control hook.
func (h *Hierarchy) ICacheInvalidateAll() {
	h.I.InvalidateAll()
}

// DCacheInvalidateBlock implements the DCISW cache-control hook.
func (h *Hierarchy) DCacheInvalidateBlock(row, way uint32) {
	h.D.InvalidateBlock(row, way)
}

// Cache returns the Cache bound to t.
func (h *Hierarchy) Cache(t Target) *Cache {
	switch t {
	case TargetI:
		return h.I
	case TargetD:
		return h.D
	case TargetL2:
		return h.L2
	default:
		return nil
	}
}

// Teardown releases all three caches. It is safe to call more than once.
func (h *Hierarchy) Teardown() {
	h.I.Teardown()
	h.D.Teardown()
	h.L2.Teardown()
}

// RegisterTeardown hooks h.Teardown into the process-wide at-exit registry,
// so freeing happens exactly once no matter which code path terminates the
// process, including an os.Exit call from deep inside the CLI layer.
func (h *Hierarchy) RegisterTeardown() {
	atexit.Register(h.Teardown)
}

// Stats is the full stats snapshot emitted at teardown: per-cache counters
// for all three levels plus the access-driver's global instruction/load/
// store counters.
type Stats struct {
	I, D, L2           Counters
	InsnCount          uint64
	LoadCount          uint64
	StoreCount         uint64
}

// Stats builds the full Stats snapshot from the three cache counters plus
// the driver-global counters the caller (typically a driver.Driver)
// accumulated.
func (h *Hierarchy) Stats(insnCount, loadCount, storeCount uint64) Stats {
	return Stats{
		I:          h.I.Stats(),
		D:          h.D.Stats(),
		L2:         h.L2.Stats(),
		InsnCount:  insnCount,
		LoadCount:  loadCount,
		StoreCount: storeCount,
	}
}

// IsICacheControl reports whether inst is the cache-control sequence the
// I-cache wrapper reacts to (ICIALLU).
func IsICacheControl(inst insts.Instruction) bool {
	return inst.IsICIALLU()
}

// IsDCacheControl reports whether inst is the cache-control sequence the
// D-cache wrapper reacts to (DCISW).
func IsDCacheControl(inst insts.Instruction) bool {
	return inst.IsDCISW()
}
