package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/pktlink/internal/config"
	"github.com/muurk/pktlink/internal/ui"
)

var (
	configForce     bool
	linkDescription string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration: the file's settings with defaults
filled in for everything it leaves out.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(registry)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		registry = config.NewRegistry()
		if err := saveRegistry(); err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Configuration written", ui.Param{Key: "Path", Value: path})
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage named links",
	Long: `Manage named links. A link name can be passed to --target in place of
a URL.`,
}

var linkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List named links",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(registry.Links) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No links configured. Add one with: pktlink config link set <name> <target>")
			return nil
		}

		names := make([]string, 0, len(registry.Links))
		for name := range registry.Links {
			names = append(names, name)
		}
		sort.Strings(names)

		rows := make([][]string, 0, len(names))
		for _, name := range names {
			l := registry.Links[name]
			used := "never"
			if !l.LastUsed.IsZero() {
				used = l.LastUsed.Local().Format(time.DateTime)
			}
			rows = append(rows, []string{name, l.Target, used, l.Description})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"NAME", "TARGET", "LAST USED", "DESCRIPTION"}, rows, "never"))
		return nil
	},
}

var linkSetCmd = &cobra.Command{
	Use:     "set <name> <target>",
	Short:   "Create or replace a named link",
	Example: `  pktlink config link set bench tcp://192.168.1.20:7070 --description "bench rig"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry.SetLink(args[0], args[1], linkDescription)
		if err := registry.Validate(); err != nil {
			return err
		}
		return saveRegistry()
	},
}

var linkRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a named link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !registry.RemoveLink(args[0]) {
			return fmt.Errorf("no link named %q", args[0])
		}
		return saveRegistry()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	linkSetCmd.Flags().StringVar(&linkDescription, "description", "", "Free-form note")

	linkCmd.AddCommand(linkListCmd, linkSetCmd, linkRemoveCmd)
	configCmd.AddCommand(configPathCmd, configShowCmd, configInitCmd, linkCmd)
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
