package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/filexfer"
	"github.com/muurk/pktlink/internal/stream"
)

func testEngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithReadTimeout(5 * time.Second),
		engine.WithRetries(3, 0),
	}
}

// startServer runs a server until the test ends.
func startServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	cfg.Engine = testEngineOptions()

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	})
	return srv
}

func dial(t *testing.T, target string, opts stream.DialOptions) *engine.Engine {
	t.Helper()
	opts.Timeout = 5 * time.Second
	st, err := stream.Dial(context.Background(), target, opts)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", target, err)
	}
	t.Cleanup(func() { st.Close() })
	return engine.New(st, filexfer.Protocol{}, testEngineOptions()...)
}

func testFile(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func download(t *testing.T, e *engine.Engine, name string) []byte {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "download"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	n, err := filexfer.Download(e, name, f)
	if err != nil {
		t.Fatalf("Download(%s) error = %v", name, err)
	}
	got := make([]byte, n)
	if _, err := f.ReadAt(got, 0); err != nil && !errors.Is(err, io.EOF) {
		t.Fatal(err)
	}
	return got
}

func TestServerTCPUploadThenDownload(t *testing.T) {
	root := t.TempDir()
	srv := startServer(t, &Config{TCPAddr: "127.0.0.1:0", Root: root})
	e := dial(t, "tcp://"+srv.TCPAddr().String(), stream.DialOptions{})

	data := testFile(5000)
	if err := filexfer.Upload(e, "upload.bin", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	// The server handles requests in order, so the upload is committed
	// before the download is answered.
	if got := download(t, e, "upload.bin"); !bytes.Equal(got, data) {
		t.Errorf("downloaded %d bytes, differs from the upload", len(got))
	}

	stored, err := os.ReadFile(filepath.Join(root, "upload.bin"))
	if err != nil {
		t.Fatalf("uploaded file not stored: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Error("stored file differs from the upload")
	}
}

func TestServerWebSocketDownload(t *testing.T) {
	root := t.TempDir()
	data := testFile(3000)
	if err := os.WriteFile(filepath.Join(root, "fw.bin"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	srv := startServer(t, &Config{WSAddr: "127.0.0.1:0", Root: root})
	e := dial(t, "ws://"+srv.WSAddr().String(), stream.DialOptions{})

	if got := download(t, e, "fw.bin"); !bytes.Equal(got, data) {
		t.Error("downloaded file differs")
	}
}

func TestServerRejectionKeepsConnection(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "present.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := startServer(t, &Config{TCPAddr: "127.0.0.1:0", Root: root})
	e := dial(t, srv.TCPAddr().String(), stream.DialOptions{})

	err := filexfer.Upload(e, "../outside.txt", strings.NewReader("x"), 1)
	var remote *filexfer.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Upload(../outside.txt) error = %v, want RemoteError", err)
	}

	if got := download(t, e, "present.txt"); string(got) != "hello" {
		t.Errorf("download after rejection = %q, want %q", got, "hello")
	}
}

func TestServerTLS(t *testing.T) {
	certPath, keyPath, cert := writeCert(t)

	tlsConfig, err := NewTLSConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("NewTLSConfig() error = %v", err)
	}
	if tlsConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", tlsConfig.MinVersion)
	}

	srv := startServer(t, &Config{TCPAddr: "127.0.0.1:0", CertPath: certPath, KeyPath: keyPath})

	roots := x509.NewCertPool()
	roots.AddCert(cert)
	e := dial(t, "tls://"+srv.TCPAddr().String(), stream.DialOptions{
		TLS: &tls.Config{RootCAs: roots, ServerName: "localhost"},
	})

	data := testFile(100)
	if err := filexfer.Upload(e, "secure.bin", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Upload() over TLS error = %v", err)
	}
}

func TestServerShutdownClosesConnections(t *testing.T) {
	srv, err := New(&Config{TCPAddr: "127.0.0.1:0", Root: t.TempDir(), Engine: testEngineOptions()})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	conn, err := net.Dial("tcp", srv.TCPAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for srv.GetActiveConnections() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("connection never became active")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("connection still open after shutdown")
	}
	if n := srv.GetActiveConnections(); n != 0 {
		t.Errorf("GetActiveConnections() = %d after shutdown", n)
	}
}

func TestRoutes(t *testing.T) {
	srv, err := New(&Config{WSAddr: "127.0.0.1:0", Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/healthz", http.StatusOK, "ok 0"},
		{"/metrics", http.StatusOK, "go_goroutines"},
		{"/link", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", body, tt.wantBody)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"no listeners", &Config{Root: t.TempDir()}},
		{"missing root", &Config{TCPAddr: ":0", Root: filepath.Join(t.TempDir(), "absent")}},
		{"root is a file", &Config{TCPAddr: ":0", Root: file}},
		{"key without cert", &Config{TCPAddr: ":0", Root: t.TempDir(), KeyPath: file}},
		{"unreadable cert", &Config{TCPAddr: ":0", Root: t.TempDir(), CertPath: file, KeyPath: file}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"closed", &engine.LinkError{Type: engine.ErrTypeIO, Op: engine.OpRead, Err: io.EOF}, false},
		{"timeout", &engine.LinkError{Type: engine.ErrTypeTimeout, Op: engine.OpRead}, false},
		{"framing", &engine.LinkError{Type: engine.ErrTypeFraming, Op: engine.OpRead}, false},
		{"transport", &engine.LinkError{Type: engine.ErrTypeTransport, Op: engine.OpWrite}, true},
		{"rejected request", &filexfer.RemoteError{Message: "no"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recoverable(tt.err); got != tt.want {
				t.Errorf("recoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// writeCert writes a self-signed localhost certificate and key.
func writeCert(t *testing.T) (certPath, keyPath string, cert *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err = x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath, cert
}
