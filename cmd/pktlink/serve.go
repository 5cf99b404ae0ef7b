package main

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/server"
	"github.com/muurk/pktlink/internal/version"
)

// Serve flags. Unset flags fall back to the server section of the config.
var (
	serveHost      string
	serveTCPPort   int
	serveWSPort    int
	serveRoot      string
	serveCert      string
	serveKey       string
	serveCapture   string
	serveAdvertise bool
	serveInstance  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a receiver",
	Long: `Run a pktlink receiver.

The receiver accepts streams on a TCP port (TLS when --cert and --key are
given) and on a WebSocket port at /link. Uploaded files are stored under
--root and downloads are served from it. The WebSocket port also serves
Prometheus metrics at /metrics and a liveness probe at /healthz.

Set a port to 0 to disable that listener.`,
	Example: `  # Serve the current directory on the default ports
  pktlink serve

  # Serve /srv/files, TCP only, announced via mDNS
  pktlink serve --root /srv/files --ws-port 0 --advertise

  # TLS on the TCP listener, with wire captures for debugging
  pktlink serve --cert cert.pem --key key.pem --capture ./captures --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveHost, "host", "", "Listen host (default from config: 0.0.0.0)")
	f.IntVar(&serveTCPPort, "tcp-port", 0, "TCP listen port, 0 disables (default from config: 7070)")
	f.IntVar(&serveWSPort, "ws-port", 0, "WebSocket listen port, 0 disables (default from config: 7071)")
	f.StringVar(&serveRoot, "root", "", "Storage directory (default from config: .)")
	f.StringVar(&serveCert, "cert", "", "TLS certificate for the TCP listener")
	f.StringVar(&serveKey, "key", "", "TLS private key for the TCP listener")
	f.StringVar(&serveCapture, "capture", "", "Directory to write JSONL wire captures to")
	f.BoolVar(&serveAdvertise, "advertise", false, "Announce the listeners via mDNS")
	f.StringVar(&serveInstance, "instance", "", "mDNS instance name (default: hostname)")
}

func runServe(cmd *cobra.Command, args []string) error {
	settings := registry.Server
	flags := cmd.Flags()
	if flags.Changed("host") {
		settings.Host = serveHost
	}
	if flags.Changed("tcp-port") {
		settings.TCPPort = serveTCPPort
	}
	if flags.Changed("ws-port") {
		settings.WSPort = serveWSPort
	}
	if flags.Changed("root") {
		settings.Root = serveRoot
	}
	if flags.Changed("cert") {
		settings.CertPath = serveCert
	}
	if flags.Changed("key") {
		settings.KeyPath = serveKey
	}
	if flags.Changed("capture") {
		settings.CaptureDir = serveCapture
	}
	if flags.Changed("advertise") {
		settings.Advertise = serveAdvertise
	}
	if flags.Changed("instance") {
		settings.Instance = serveInstance
	}

	cfg := &server.Config{
		TCPAddr:    listenAddr(settings.Host, settings.TCPPort),
		WSAddr:     listenAddr(settings.Host, settings.WSPort),
		CertPath:   settings.CertPath,
		KeyPath:    settings.KeyPath,
		Root:       settings.Root,
		CaptureDir: settings.CaptureDir,
		Advertise:  settings.Advertise,
		Instance:   settings.Instance,
		Engine:     registry.Engine.Options(),
		Transfer:   registry.Transfer.Options(),
	}

	logging.Info("Starting pktlink receiver",
		zap.String("version", version.Full()),
		zap.String("tcp", cfg.TCPAddr),
		zap.String("ws", cfg.WSAddr),
		zap.String("root", cfg.Root),
	)

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	return srv.Start()
}

// listenAddr returns "" for port 0, which disables the listener.
func listenAddr(host string, port int) string {
	if port <= 0 {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
