// Package ui provides terminal output for the pktlink CLI.
//
// Commands print a Header describing what they are about to do, run a
// transfer through a TransferRunner, and finish with a Result box. On an
// interactive terminal the runner drives a Bubble Tea program with a
// progress bar; when output is redirected it prints one progress line per
// 10% instead.
//
// Example:
//
//	runner := ui.NewTransferRunner("Send", "pktlink send fw.bin", os.Stdout,
//	    ui.Param{Key: "Target", Value: target},
//	)
//	err := runner.Run(func(onProgress filexfer.ProgressCallback) ([]ui.Param, error) {
//	    err := filexfer.Upload(e, "fw.bin", f, size, filexfer.WithProgress(onProgress))
//	    return []ui.Param{{Key: "Size", Value: ui.FormatBytes(size)}}, err
//	})
//
// Logging is silent unless PKTLINK_LOG_LEVEL or --log-level enables it, so
// zap output does not interleave with the progress display.
package ui
