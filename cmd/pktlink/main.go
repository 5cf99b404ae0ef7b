// Pktlink moves files over framed, acknowledged packet streams.
//
// It sends and fetches files through a pktlink receiver over TCP, TLS or
// WebSocket, runs the receiver itself, and finds receivers on the local
// network via mDNS.
//
// Usage:
//
//	pktlink [command] [flags]
//
// See 'pktlink --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/pktlink/internal/config"
	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

// registry is loaded before every command runs.
var registry *config.Registry

var rootCmd = &cobra.Command{
	Use:   "pktlink",
	Short: "Framed packet file transfer",
	Long: `Move files over framed, acknowledged packet streams.

Every packet carries a header, an escaped payload and an MD5 checksum.
Corrupted packets are NAKed and resent; timeouts and retry budgets come
from the configuration file (see 'pktlink config path').`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: OS config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup initialises logging and loads the configuration registry.
func setup(cmd *cobra.Command, args []string) error {
	level := logLevel
	if level == "" {
		level = os.Getenv(logging.LogLevelEnvVar)
	}
	if level == "" && cmd == serveCmd {
		level = "info"
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}

	var err error
	if configPath != "" {
		registry, err = config.LoadFrom(configPath)
	} else {
		registry, err = config.LoadRegistry()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return nil
}

// saveRegistry writes the registry back to where it was loaded from.
func saveRegistry() error {
	if configPath != "" {
		return registry.SaveTo(configPath)
	}
	return registry.Save()
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			return printJSON(cmd.OutOrStdout(), version.Get())
		}
		info := version.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "pktlink %s (commit: %s, %s, %s)\n",
			info.Version, info.Commit, info.GoVersion, info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print as JSON")
}
