// Command pagetables drives a software virtual-memory simulation: a
// 4-level page-table walker, TLB, and physical-page allocator, fed by a
// trace of memory accesses.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var envPath string

var rootCmd = &cobra.Command{
	Use:   "pagetables",
	Short: "pagetables drives a software virtual-memory simulation.",
	Long: "pagetables simulates a 4-level software-managed page table, a " +
		"TLB, and a physical-page allocator over a trace of memory accesses.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "",
		"path to a .env file of defaults (optional)")
}

// Execute runs the root command, exiting with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
