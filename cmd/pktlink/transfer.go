package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/pktlink/internal/filexfer"
	"github.com/muurk/pktlink/internal/ui"
)

// Transfer flags
var (
	remoteName string
	outputPath string
	force      bool
)

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Upload a file to a receiver",
	Long: `Upload a file to a pktlink receiver.

The file is split into data packets of transfer.chunk_size bytes. Each packet
is checksummed and acknowledged; packets the receiver NAKs are resent up to
engine.transmit_retries times.`,
	Example: `  # Upload over TCP
  pktlink send firmware.bin --target tcp://192.168.1.20:7070

  # Upload to a configured link under another name
  pktlink send build/out.bin --target bench --name firmware.bin

  # Upload over WebSocket to the first receiver found via mDNS
  pktlink send firmware.bin --discover`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Download a file from a receiver",
	Long: `Download a file from a pktlink receiver's storage directory.

The file is written to a temporary file next to the destination and renamed
into place once every packet has been received and verified.`,
	Example: `  # Download into the current directory
  pktlink get firmware.bin --target tcp://192.168.1.20:7070

  # Download to a specific path, replacing it without asking
  pktlink get logs/today.txt --target bench -o today.txt --force`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	addConnectionFlags(sendCmd)
	sendCmd.Flags().StringVar(&remoteName, "name", "", "Name to store the file under (default: base name of <file>)")

	addConnectionFlags(getCmd)
	getCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination path (default: base name of <name>)")
	getCmd.Flags().BoolVar(&force, "force", false, "Overwrite the destination without asking")
}

func runSend(cmd *cobra.Command, args []string) error {
	path := args[0]
	name := remoteName
	if name == "" {
		name = filepath.Base(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	size, err := fileSize(f)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	runner := newRunner(cmd, "Send",
		ui.Param{Key: "File", Value: path},
		ui.Param{Key: "Name", Value: name},
		ui.Param{Key: "Size", Value: ui.FormatBytes(size)},
		ui.Param{Key: "Target", Value: s.Target},
	)
	err = runner.Run(func(onProgress filexfer.ProgressCallback) ([]ui.Param, error) {
		if err := filexfer.Upload(s.Engine, name, f, size, transferOptions(filexfer.WithProgress(onProgress))...); err != nil {
			return nil, err
		}
		return s.stats(size), nil
	})
	if err != nil {
		return err
	}
	s.done()
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	name := args[0]
	dest := outputPath
	if dest == "" {
		dest = filepath.Base(name)
	}

	if _, err := os.Stat(dest); err == nil && !force {
		if !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Overwrite "+dest, []string{"The destination already exists"}) {
			return nil
		}
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	runner := newRunner(cmd, "Get",
		ui.Param{Key: "Name", Value: name},
		ui.Param{Key: "Output", Value: dest},
		ui.Param{Key: "Target", Value: s.Target},
	)
	err = runner.Run(func(onProgress filexfer.ProgressCallback) ([]ui.Param, error) {
		n, err := filexfer.Download(s.Engine, name, tmp, transferOptions(filexfer.WithProgress(onProgress))...)
		if err != nil {
			return nil, err
		}
		if err := tmp.Close(); err != nil {
			return nil, err
		}
		if err := os.Rename(tmp.Name(), dest); err != nil {
			return nil, fmt.Errorf("move download into place: %w", err)
		}
		committed = true
		return s.stats(n), nil
	})
	if err != nil {
		return err
	}
	s.done()
	return nil
}

func newRunner(cmd *cobra.Command, title string, params ...ui.Param) *ui.TransferRunner {
	r := ui.NewTransferRunner(title, cmd.CommandPath()+" "+joinArgs(cmd), cmd.OutOrStdout(), params...)
	if !registry.Preferences.ShowProgress {
		r.Interactive = false
	}
	return r
}

func joinArgs(cmd *cobra.Command) string {
	args := cmd.Flags().Args()
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// stats summarises the engine counters of a finished transfer.
func (s *session) stats(size int64) []ui.Param {
	e := s.Engine
	return []ui.Param{
		{Key: "Size", Value: ui.FormatBytes(size)},
		{Key: "Packets", Value: fmt.Sprintf("%d sent, %d received", e.PacketsSent(), e.PacketsReceived())},
		{Key: "Retries", Value: strconv.FormatUint(e.TransmitRetryCount()+e.ReceiveRetryCount(), 10)},
	}
}
