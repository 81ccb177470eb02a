package main

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	inspectURL       string
	inspectComponent string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Fetch a component's serialized state from a running monitoring server.",
	Run:   runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectURL, "url", "http://localhost:8080",
		"base URL of a running `pagetables serve` or `pagetables run --monitor` instance")
	inspectCmd.Flags().StringVar(&inspectComponent, "component", "",
		"component name to inspect, e.g. allocator, driver, mmu")
	inspectCmd.MarkFlagRequired("component")

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, _ []string) {
	url := inspectURL + "/inspect/" + inspectComponent

	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("pagetables: fetching %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("pagetables: reading response from %s: %v", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("pagetables: %s returned %s: %s", url, resp.Status, body)
	}

	fmt.Println(string(body))
}
