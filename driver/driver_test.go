package driver_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/byuccl/qemu/cache"
	"github.com/byuccl/qemu/driver"
	"github.com/byuccl/qemu/insts"
)

type fakeRegs map[int]uint32

func (f fakeRegs) ReadRegister(index int) (uint32, error) { return f[index], nil }

func newHierarchy() *cache.Hierarchy {
	h, err := cache.NewHierarchy(
		cache.Config{Size: 1024, Associativity: 4, BlockSize: 32, Replace: cache.RoundRobin, Allocate: cache.NoWriteAllocate},
		cache.Config{Size: 1024, Associativity: 4, BlockSize: 32, Replace: cache.RoundRobin, Allocate: cache.NoWriteAllocate},
		cache.Config{Size: 4096, Associativity: 8, BlockSize: 32, Replace: cache.RoundRobin, Allocate: cache.WriteAllocate},
	)
	Expect(err).NotTo(HaveOccurred())
	return h
}

var _ = Describe("Driver", func() {
	var h *cache.Hierarchy
	var d *driver.Driver

	BeforeEach(func() {
		h = newHierarchy()
		d = driver.New(h, fakeRegs{}, 0x8000, 0x9000)
	})

	Describe("OnInsnExec in .text", func() {
		It("increments insn_count and issues an icache load", func() {
			// ADD r0, r0, r1 -- not a memory op, but still a fetch.
			err := d.OnInsnExec(0x8000, []byte{0x01, 0x00, 0x80, 0xE0})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.InsnCount).To(Equal(uint64(1)))
			Expect(h.I.Stats().LoadMisses + h.I.Stats().LoadHits).To(Equal(uint64(1)))
		})

		It("invokes the retire hook with the running insn_count", func() {
			var seen []uint64
			d.OnRetire = func(n uint64) { seen = append(seen, n) }

			d.OnInsnExec(0x8000, []byte{0x01, 0x00, 0x80, 0xE0})
			d.OnInsnExec(0x8004, []byte{0x01, 0x00, 0x80, 0xE0})

			Expect(seen).To(Equal([]uint64{1, 2}))
		})
	})

	Describe("OnInsnExec outside .text", func() {
		It("does not count the fetch or touch the icache", func() {
			d.OnInsnExec(0x1000, []byte{0x01, 0x00, 0x80, 0xE0})
			Expect(d.InsnCount).To(Equal(uint64(0)))
		})
	})

	Describe("DCISW dispatch", func() {
		It("reads Rt and invalidates the decoded set/way", func() {
			regs := fakeRegs{0: (2 << 30) | (5 << 4)} // way=2, set=5
			d = driver.New(h, regs, 0x8000, 0x9000)

			// Fill D-cache row 5 way 0/1/2 so we can observe the invalidate.
			rowShift, rowBits := uint32(5), uint32(3) // 1024/(4*32)=8 rows -> 3 bits
			addr := (uint32(0xAB) << (rowShift + rowBits)) | (5 << rowShift)
			h.D.Load(addr) // way 0
			h.D.Load(addr + 0x10000)
			h.D.Load(addr + 0x20000) // way 2

			// MCR p14, 0, r0, c7, c6, 2 (DCISW), raw little-endian of 0xEE070E56.
			err := d.OnInsnExec(0x8000, []byte{0x56, 0x0E, 0x07, 0xEE})
			Expect(err).NotTo(HaveOccurred())

			Expect(h.D.IsBlockValid(5, 2)).To(BeFalse())
			Expect(h.D.IsBlockValid(5, 0)).To(BeTrue())
		})
	})

	Describe("ICIALLU dispatch", func() {
		It("invalidates every I-cache line", func() {
			h.I.Load(0x100)
			h.I.Load(0x200)

			// MCR p14, 0, r0, c7, c5, 0 (ICIALLU), raw little-endian of 0xEE070E15.
			err := d.OnInsnExec(0x8000, []byte{0x15, 0x0E, 0x07, 0xEE})
			Expect(err).NotTo(HaveOccurred())

			Expect(h.I.IsBlockValid(0, 0)).To(BeFalse())
		})
	})

	Describe("non-ARM targets", func() {
		It("skips cache-control dispatch when ArmIdentified is false", func() {
			d.ArmIdentified = false
			err := d.OnInsnExec(0x8000, []byte{0x56, 0x0E, 0x07, 0xEE})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.D.IsBlockValid(5, 2)).To(BeFalse()) // never touched either way
		})
	})

	Describe("size mismatch", func() {
		It("still counts the fetch but reports the decode error", func() {
			err := d.OnInsnExec(0x8000, []byte{0x01, 0x02})
			Expect(err).To(MatchError(insts.ErrSizeMismatch))
			Expect(d.InsnCount).To(Equal(uint64(1)))
		})
	})

	Describe("OnMemAccess", func() {
		It("routes loads and stores to the D-cache and skips addresses in .text", func() {
			d.OnMemAccess(0x1000, insts.Load)
			Expect(d.LoadCount).To(Equal(uint64(1)))

			d.OnMemAccess(0x1004, insts.Store)
			Expect(d.StoreCount).To(Equal(uint64(1)))

			d.OnMemAccess(0x8004, insts.Load) // inside .text: already counted as a fetch
			Expect(d.LoadCount).To(Equal(uint64(1)))
		})

		It("issues both a load and a store for a LoadStore (swap) access", func() {
			d.OnMemAccess(0x1000, insts.LoadStore)
			Expect(d.LoadCount).To(Equal(uint64(1)))
			Expect(d.StoreCount).To(Equal(uint64(1)))
		})
	})
})
