package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/leidenuniv/pagetables/config"
	"github.com/leidenuniv/pagetables/faulthandler"
	"github.com/leidenuniv/pagetables/kernel"
	"github.com/leidenuniv/pagetables/mem/vm"
	"github.com/leidenuniv/pagetables/mem/vm/alloc"
	"github.com/leidenuniv/pagetables/mem/vm/mmu"
	"github.com/leidenuniv/pagetables/mem/vm/pgtable"
	"github.com/leidenuniv/pagetables/monitoring"
	"github.com/leidenuniv/pagetables/trace"
)

const runPID = vm.PID(1)

var (
	tracePath   string
	syntheticN  int
	memorySize  uint64
	tlbCapacity int
	monitorPort int
	withMonitor bool
	cpuProfile  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a trace of memory accesses through the simulation core.",
	Run:   runRun,
}

func init() {
	cfg := config.Default()

	runCmd.Flags().StringVar(&tracePath, "trace", "",
		"path to a text trace file (default: a synthetic trace)")
	runCmd.Flags().IntVar(&syntheticN, "synthetic-count", 1000,
		"number of synthetic accesses when --trace is unset")
	runCmd.Flags().Uint64Var(&memorySize, "memory-size", cfg.MemorySize,
		"bytes of simulated physical memory")
	runCmd.Flags().IntVar(&tlbCapacity, "tlb-capacity", cfg.TLBCapacity,
		"number of TLB entries")
	runCmd.Flags().IntVar(&monitorPort, "monitor-port", cfg.MonitorPort,
		"port for the monitoring server, used only with --monitor")
	runCmd.Flags().BoolVar(&withMonitor, "monitor", false,
		"start the monitoring server while running")
	runCmd.Flags().StringVar(&cpuProfile, "cpuprofile", "",
		"write a CPU profile to this path")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) {
	cfg := config.LoadEnv(config.Default(), envPath)

	flags := cmd.Flags()
	if flags.Changed("memory-size") {
		cfg.MemorySize = memorySize
	}
	if flags.Changed("tlb-capacity") {
		cfg.TLBCapacity = tlbCapacity
	}
	if flags.Changed("monitor-port") {
		cfg.MonitorPort = monitorPort
	}
	if flags.Changed("trace") {
		cfg.TracePath = tracePath
	}

	stopProfile := maybeStartCPUProfile(cpuProfile)
	defer stopProfile()

	k := kernel.New()

	allocator, err := alloc.New(k, vm.PageSize, cfg.MemorySize)
	if err != nil {
		log.Fatalf("pagetables: %v", err)
	}
	defer allocator.Close()

	driver := pgtable.New(k)
	driver.AllocatePageTable(runPID)
	defer driver.ReleasePageTable(runPID)

	handler := faulthandler.New(driver, allocator)
	handler.SetCurrentPID(runPID)

	walker := mmu.NewWalker(driver)
	facade := mmu.New("run", walker, cfg.TLBCapacity)
	facade.Initialize(handler)
	facade.SetPageTablePointer(driver.GetPageTable(runPID))

	var monitor *monitoring.Monitor
	if withMonitor {
		monitor = monitoring.New().WithPortNumber(cfg.MonitorPort)
		monitor.RegisterComponent("allocator", allocator)
		monitor.RegisterComponent("driver", driver)
		monitor.RegisterComponent("mmu", facade)
		monitor.Serve()
	}

	source := openSource(cfg)
	defer source.Close()

	var bar *monitoring.ProgressBar
	if monitor != nil {
		total := uint64(0)
		if cfg.TracePath == "" {
			total = uint64(syntheticN)
		}
		bar = monitor.CreateProgressBar("run", total)
	}

	count := 0
	for {
		access, ok := source.Next()
		if !ok {
			break
		}

		facade.ProcessMemAccess(access)
		count++

		if bar != nil {
			bar.IncrementFinished(1)
		}
	}

	fmt.Fprintf(os.Stderr, "pagetables: processed %d accesses\n", count)
}

func maybeStartCPUProfile(path string) (stop func()) {
	if path == "" {
		return func() {}
	}

	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("pagetables: creating cpu profile %s: %v", path, err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		log.Fatalf("pagetables: starting cpu profile: %v", err)
	}

	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}
}

func openSource(cfg config.Config) trace.Source {
	if cfg.TracePath == "" {
		return trace.NewSyntheticSource(1, syntheticN, 256, 0.3)
	}

	trace.WarnIfMissing(cfg.TracePath)

	f, err := os.Open(cfg.TracePath)
	if err != nil {
		log.Fatalf("pagetables: opening trace %s: %v", cfg.TracePath, err)
	}

	return trace.NewTextSource(f)
}
