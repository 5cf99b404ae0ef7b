package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/pktlink/internal/discovery"
	"github.com/muurk/pktlink/internal/ui"
)

// Scan flags
var (
	scanTimeout time.Duration
	scanSave    bool
	scanJSON    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find receivers on the local network",
	Long: `Find pktlink receivers that announce themselves via mDNS
(service ` + discovery.ServiceType + `).

Receivers started with 'pktlink serve --advertise' are listed with the
target URL to pass to --target.`,
	Example: `  # Scan with the configured timeout
  pktlink scan

  # Scan for 10 seconds and store every receiver as a named link
  pktlink scan --timeout 10s --save`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Scan timeout (default from config: preferences.discover_timeout)")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Store each receiver as a link named after its instance")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print peers as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(registry.Preferences.DiscoverTimeout) * time.Second
	if scanTimeout > 0 {
		scanner.Timeout = scanTimeout
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	if !scanJSON {
		printer.Printf("Scanning for %s receivers (timeout: %s)...\n\n", discovery.ServiceType, scanner.Timeout)
	}

	peers, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanJSON {
		return printJSON(cmd.OutOrStdout(), peers)
	}

	if len(peers) == 0 {
		printer.PrintError("No receivers found", nil, []string{
			"Start a receiver with: pktlink serve --advertise",
			"mDNS does not cross routers or most VPNs",
			"Try a longer --timeout",
		})
		return nil
	}

	for i, p := range peers {
		printer.Printf("%d. %s\n", i+1, p.Instance)
		printer.Printf("   Target:    %s\n", p.Target())
		printer.Printf("   Host:      %s\n", p.Hostname)
		if p.Version != "" {
			printer.Printf("   Version:   %s\n", p.Version)
		}
		printer.Newline()

		if scanSave {
			name := p.Instance
			if p.Transport == discovery.TransportWebSocket {
				name += "-ws"
			}
			registry.SetLink(name, p.Target(), "discovered via mDNS")
		}
	}

	if scanSave {
		if err := saveRegistry(); err != nil {
			return fmt.Errorf("failed to save links: %w", err)
		}
		printer.Println("Saved receivers as links; use them with --target <instance>")
	}
	return nil
}
