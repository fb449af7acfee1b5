package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/byuccl/qemu/cache"
	"github.com/byuccl/qemu/config"
	"github.com/byuccl/qemu/driver"
	"github.com/byuccl/qemu/inject"
	"github.com/byuccl/qemu/trace"
	"github.com/byuccl/qemu/transport"
)

var (
	configPath    string
	tracePath     string
	registersPath string
	listenAddr    string
	verbose       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a trace through the cache hierarchy and report the final stats.",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&configPath, "config", "", "path to a JSON config file (defaults apply if omitted)")
	runCmd.Flags().StringVar(&tracePath, "trace", "", "path to the recorded trace file")
	runCmd.Flags().StringVar(&registersPath, "registers", "", "path to the companion register-snapshot stream file")
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "collaborator listen address, e.g. 127.0.0.1:9900 (empty disables the listener)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every major step to stderr")
}

func logf(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.TracePath == "" {
		return fmt.Errorf("run: no trace file given (--trace or config trace_path)")
	}

	h, err := cache.NewHierarchy(cfg.ICache.ToCacheConfig(), cfg.DCache.ToCacheConfig(), cfg.L2Cache.ToCacheConfig())
	if err != nil {
		return fmt.Errorf("run: constructing cache hierarchy: %w", err)
	}
	h.RegisterTeardown()
	logf("cache hierarchy constructed: icache=%dB dcache=%dB l2cache=%dB\n",
		cfg.ICache.Size, cfg.DCache.Size, cfg.L2Cache.Size)

	regs, regsCloser, err := openRegisterStream(cfg.RegistersPath)
	if err != nil {
		return err
	}
	defer regsCloser.Close()

	d := driver.New(h, regs, cfg.TextStart, cfg.TextEnd)
	d.ArmIdentified = cfg.ArmTarget

	injector := inject.New(h)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var collaborator *transport.Conn
	if cfg.ListenAddr != "" {
		collaborator, err = acceptCollaborator(ctx, cfg.ListenAddr, injector)
		if err != nil {
			logf("collaborator listener: %v\n", err)
		}
	}

	d.OnRetire = func(insnCount uint64) {
		result, err := injector.NotifyInsnRetired(insnCount)
		if err != nil {
			logf("injector: %v\n", err)
			return
		}
		if result == nil {
			return
		}
		logf("fault injected at insn_count=%d addr=0x%08X\n", result.InsnCount, result.Addr)
		if collaborator != nil {
			if err := collaborator.WriteFired(result.InsnCount, result.Addr); err != nil {
				logf("writing fired result to collaborator: %v\n", err)
			}
		}
	}

	f, err := os.Open(cfg.TracePath)
	if err != nil {
		return fmt.Errorf("run: opening trace: %w", err)
	}
	defer f.Close()

	n, err := trace.Replay(f, d)
	if err != nil {
		return fmt.Errorf("run: replaying trace: %w", err)
	}
	logf("replayed %d events\n", n)

	stats := h.Stats(d.InsnCount, d.LoadCount, d.StoreCount)
	if err := transport.WriteStats(os.Stdout, stats); err != nil {
		return fmt.Errorf("run: writing stats: %w", err)
	}

	atexit.Exit(0)
	return nil
}

func loadConfig() (*config.Config, error) {
	config.LoadDotenvDefaults(".env")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	cfg.EnvOverrides()

	if tracePath != "" {
		cfg.TracePath = tracePath
	}
	if registersPath != "" {
		cfg.RegistersPath = registersPath
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	return cfg, nil
}

// acceptCollaborator opens the C7 listener and blocks for a single
// collaborator connection, reading its injection plan and arming the
// injector before returning. It gives up and returns a nil Conn if ctx is
// canceled first, matching §4.7's "if no collaborator ever connects, the
// injector still runs" behavior.
func acceptCollaborator(ctx context.Context, addr string, injector *inject.Injector) (*transport.Conn, error) {
	ln, err := transport.Listen(addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	atexit.Register(func() { ln.Close() })

	logf("collaborator listener on %s\n", addr)

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- acceptResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-accepted:
		if r.err != nil {
			return nil, r.err
		}
		c := transport.NewConn(r.conn)
		plan, err := c.ReadPlan()
		if err != nil {
			return nil, fmt.Errorf("reading injection plan: %w", err)
		}
		if err := injector.Arm(plan); err != nil {
			werr := c.WriteRangeError(err)
			return nil, fmt.Errorf("arming injector: %w (report to collaborator: %v)", err, werr)
		}
		if err := c.WriteOK(); err != nil {
			logf("acknowledging plan to collaborator: %v\n", err)
		}
		logf("collaborator %s armed plan on %s\n", c.ID, plan.Target)
		return c, nil
	}
}
