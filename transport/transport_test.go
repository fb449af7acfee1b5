package transport_test

import (
	"bytes"
	"net"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/byuccl/qemu/cache"
	"github.com/byuccl/qemu/inject"
	"github.com/byuccl/qemu/transport"
)

var _ = Describe("ParsePlan", func() {
	It("parses a well-formed injection line", func() {
		p, err := transport.ParsePlan("1000 3 2 5 dcache")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.SleepCycles).To(Equal(uint64(1000)))
		Expect(p.Row).To(Equal(uint32(3)))
		Expect(p.Way).To(Equal(uint32(2)))
		Expect(p.WordInBlock).To(Equal(uint32(5)))
		Expect(p.Target).To(Equal(cache.TargetD))
	})

	It("rejects an unknown cache name", func() {
		_, err := transport.ParsePlan("1000 3 2 5 vram")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a line with the wrong field count", func() {
		_, err := transport.ParsePlan("1000 3 2 dcache")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("WriteFired", func() {
	It("writes the insn_count and addr as two framed hex lines", func() {
		var buf bytes.Buffer
		Expect(transport.WriteFired(&buf, 42, 0x1000)).To(Succeed())
		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		Expect(lines).To(Equal([]string{"0x0000002A", "0x00001000"}))
	})
})

var _ = Describe("Conn", func() {
	It("reads a plan off the wire", func() {
		pipe := &bytes.Buffer{}
		pipe.WriteString("500 1 0 2 icache\n")
		c := transport.NewConn(pipe)
		p, err := c.ReadPlan()
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Target).To(Equal(cache.TargetI))
		Expect(p.SleepCycles).To(Equal(uint64(500)))
	})

	It("assigns each connection a distinct ID", func() {
		a := transport.NewConn(&bytes.Buffer{})
		b := transport.NewConn(&bytes.Buffer{})
		Expect(a.ID.String()).NotTo(Equal(b.ID.String()))
	})

	It("writes OK on a successfully armed plan", func() {
		var buf bytes.Buffer
		c := transport.NewConn(&buf)
		Expect(c.WriteOK()).To(Succeed())
		Expect(buf.String()).To(Equal("OK\n"))
	})

	It("writes RANGE_ERROR with the reason on a rejected plan", func() {
		var buf bytes.Buffer
		c := transport.NewConn(&buf)
		Expect(c.WriteRangeError(cache.ErrSizeMismatch)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("RANGE_ERROR"))
	})
})

var _ = Describe("collaborator round trip over a real TCP connection", func() {
	// serve accepts exactly one connection on ln, reads its plan, arms inj,
	// and replies OK or RANGE_ERROR, mirroring cmd/qemu-cachesim's
	// acceptCollaborator without depending on that package.
	serve := func(ln net.Listener, inj *inject.Injector, done chan<- struct{}) {
		conn, err := ln.Accept()
		if err != nil {
			close(done)
			return
		}
		c := transport.NewConn(conn)
		plan, err := c.ReadPlan()
		if err != nil {
			close(done)
			return
		}
		if err := inj.Arm(plan); err != nil {
			c.WriteRangeError(err)
		} else {
			c.WriteOK()
		}
		close(done)
	}

	It("arms the injector and replies OK for a valid plan", func() {
		h, err := cache.NewHierarchy(cache.DefaultIConfig, cache.DefaultDConfig, cache.DefaultL2Config)
		Expect(err).NotTo(HaveOccurred())
		inj := inject.New(h)

		ln, err := transport.Listen("127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		done := make(chan struct{})
		go serve(ln, inj, done)

		conn, err := net.Dial("tcp", ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		_, err = conn.Write([]byte("1000 0 0 0 dcache\n"))
		Expect(err).NotTo(HaveOccurred())

		reply := make([]byte, 64)
		n, err := conn.Read(reply)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(reply[:n])).To(Equal("OK\n"))

		<-done
		Expect(inj.State()).To(Equal(inject.Armed))
	})

	It("rejects an out-of-range plan with RANGE_ERROR", func() {
		h, err := cache.NewHierarchy(cache.DefaultIConfig, cache.DefaultDConfig, cache.DefaultL2Config)
		Expect(err).NotTo(HaveOccurred())
		inj := inject.New(h)

		ln, err := transport.Listen("127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		done := make(chan struct{})
		go serve(ln, inj, done)

		conn, err := net.Dial("tcp", ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		_, err = conn.Write([]byte("1000 999999 0 0 dcache\n"))
		Expect(err).NotTo(HaveOccurred())

		reply := make([]byte, 64)
		n, err := conn.Read(reply)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(reply[:n])).To(ContainSubstring("RANGE_ERROR"))

		<-done
	})
})

var _ = Describe("WriteStats", func() {
	It("reports per-cache counters and the driver globals", func() {
		var buf bytes.Buffer
		stats := cache.Stats{
			I:          cache.Counters{LoadHits: 10, LoadMisses: 2},
			D:          cache.Counters{LoadHits: 5, StoreHits: 3, StoreMisses: 1},
			L2:         cache.Counters{LoadMisses: 1},
			InsnCount:  100,
			LoadCount:  20,
			StoreCount: 5,
		}
		Expect(transport.WriteStats(&buf, stats)).To(Succeed())
		out := buf.String()
		Expect(out).To(ContainSubstring("icache load_hits=10 load_misses=2"))
		Expect(out).To(ContainSubstring("dcache load_hits=5"))
		Expect(out).To(ContainSubstring("l2cache"))
		Expect(out).To(ContainSubstring("global insn_count=100 load_count=20 store_count=5"))
	})
})
