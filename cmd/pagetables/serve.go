package main

import (
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/leidenuniv/pagetables/config"
	"github.com/leidenuniv/pagetables/kernel"
	"github.com/leidenuniv/pagetables/mem/vm"
	"github.com/leidenuniv/pagetables/mem/vm/alloc"
	"github.com/leidenuniv/pagetables/mem/vm/mmu"
	"github.com/leidenuniv/pagetables/mem/vm/pgtable"
	"github.com/leidenuniv/pagetables/monitoring"
)

const servePID = vm.PID(1)

var (
	servePort int
	serveOpen bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stand up a monitoring server over a freshly wired, empty simulation.",
	Long: "serve wires a kernel, allocator, page-table driver, and MMU façade " +
		"with no trace attached, and exposes them for inspection — useful for " +
		"poking at the HTTP surface without also needing a trace file.",
	Run: runServe,
}

func init() {
	cfg := config.Default()

	serveCmd.Flags().IntVar(&servePort, "port", cfg.MonitorPort,
		"port for the monitoring server; 0 picks a random free port")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false,
		"open the server's /components endpoint in a browser")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) {
	cfg := config.LoadEnv(config.Default(), envPath)
	if cmd.Flags().Changed("port") {
		cfg.MonitorPort = servePort
	}

	k := kernel.New()

	allocator, err := alloc.New(k, vm.PageSize, cfg.MemorySize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagetables: %v\n", err)
		os.Exit(1)
	}
	defer allocator.Close()

	driver := pgtable.New(k)
	driver.AllocatePageTable(servePID)
	defer driver.ReleasePageTable(servePID)

	walker := mmu.NewWalker(driver)
	facade := mmu.New("serve", walker, cfg.TLBCapacity)
	facade.SetPageTablePointer(driver.GetPageTable(servePID))

	monitor := monitoring.New().WithPortNumber(cfg.MonitorPort)
	monitor.RegisterComponent("kernel", k)
	monitor.RegisterComponent("allocator", allocator)
	monitor.RegisterComponent("driver", driver)
	monitor.RegisterComponent("mmu", facade)

	url := monitor.Serve()
	fmt.Fprintf(os.Stderr, "pagetables: serving components at %s/components\n", url)

	if serveOpen {
		if err := browser.OpenURL(url + "/components"); err != nil {
			fmt.Fprintf(os.Stderr, "pagetables: could not open browser: %v\n", err)
		}
	}

	select {}
}
