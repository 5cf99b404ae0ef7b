package config

import (
	"fmt"
	"time"

	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/filexfer"
)

// Registry represents the entire user configuration file.
type Registry struct {
	Version     int              `yaml:"version"`
	Engine      EngineSettings   `yaml:"engine"`
	Transfer    TransferSettings `yaml:"transfer"`
	Server      ServerSettings   `yaml:"server"`
	Links       map[string]*Link `yaml:"links,omitempty"` // Keyed by link name
	Preferences *Preferences     `yaml:"preferences,omitempty"`
}

// EngineSettings mirrors engine.Config.
type EngineSettings struct {
	ReadTimeout        time.Duration `yaml:"read_timeout"`         // Per-segment read timeout, 0 disables
	TransmitRetries    int           `yaml:"transmit_retries"`     // Resends after a NAK
	TransmitRetryDelay time.Duration `yaml:"transmit_retry_delay"` // Pause before each resend
	ReceiveRetries     int           `yaml:"receive_retries"`      // Fresh reads after an invalid packet
	ReceiveRetryDelay  time.Duration `yaml:"receive_retry_delay"`  // Pause before each fresh read
	BufferSize         int           `yaml:"buffer_size"`          // Maximum bytes per stream read
	MaxPayloadSize     int           `yaml:"max_payload_size"`     // Largest accepted payload
}

// TransferSettings configures file transfers.
type TransferSettings struct {
	ChunkSize int `yaml:"chunk_size"` // Payload bytes per data packet
}

// ServerSettings configures `pktlink serve`.
type ServerSettings struct {
	Host       string `yaml:"host"`
	TCPPort    int    `yaml:"tcp_port"`              // 0 disables the TCP listener
	WSPort     int    `yaml:"ws_port"`               // 0 disables the WebSocket listener
	CertPath   string `yaml:"cert_path,omitempty"`   // TLS certificate for the TCP listener
	KeyPath    string `yaml:"key_path,omitempty"`    // TLS key for the TCP listener
	Root       string `yaml:"root"`                  // Directory files are stored in and served from
	CaptureDir string `yaml:"capture_dir,omitempty"` // JSONL wire captures, empty disables
	Advertise  bool   `yaml:"advertise"`             // Register the listeners via mDNS
	Instance   string `yaml:"instance,omitempty"`    // mDNS instance name, defaults to the hostname
}

// Link is a named dial target.
type Link struct {
	Target      string    `yaml:"target"`                // e.g. "tcp://192.168.1.20:7070"
	Description string    `yaml:"description,omitempty"` // Free-form note
	LastUsed    time.Time `yaml:"last_used,omitempty"`   // Last successful transfer
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DiscoverTimeout int  `yaml:"discover_timeout"` // mDNS discovery timeout in seconds
	ShowProgress    bool `yaml:"show_progress"`    // Progress bar on interactive terminals
}

// DefaultEngineSettings returns the engine defaults.
func DefaultEngineSettings() EngineSettings {
	c := engine.DefaultConfig()
	return EngineSettings{
		ReadTimeout:        c.ReadTimeout,
		TransmitRetries:    c.TransmitRetries,
		TransmitRetryDelay: c.TransmitRetryDelay,
		ReceiveRetries:     c.ReceiveRetries,
		ReceiveRetryDelay:  c.ReceiveRetryDelay,
		BufferSize:         c.BufferSize,
		MaxPayloadSize:     c.MaxPayloadSize,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:  1,
		Engine:   DefaultEngineSettings(),
		Transfer: TransferSettings{ChunkSize: filexfer.DefaultChunkSize},
		Server: ServerSettings{
			Host:    "0.0.0.0",
			TCPPort: 7070,
			WSPort:  7071,
			Root:    ".",
		},
		Links: make(map[string]*Link),
		Preferences: &Preferences{
			DiscoverTimeout: 5,
			ShowProgress:    true,
		},
	}
}

// Options converts the settings into engine options.
func (s EngineSettings) Options() []engine.Option {
	return []engine.Option{
		engine.WithReadTimeout(s.ReadTimeout),
		engine.WithTransmitRetries(s.TransmitRetries),
		engine.WithTransmitRetryDelay(s.TransmitRetryDelay),
		engine.WithReceiveRetries(s.ReceiveRetries),
		engine.WithReceiveRetryDelay(s.ReceiveRetryDelay),
		engine.WithBufferSize(s.BufferSize),
		engine.WithMaxPayloadSize(s.MaxPayloadSize),
	}
}

// Options converts the settings into transfer options.
func (s TransferSettings) Options() []filexfer.Option {
	return []filexfer.Option{filexfer.WithChunkSize(s.ChunkSize)}
}

// Validate reports settings the engine would silently ignore.
func (r *Registry) Validate() error {
	e := r.Engine
	switch {
	case e.ReadTimeout < 0:
		return fmt.Errorf("engine.read_timeout must not be negative")
	case e.TransmitRetries < 0 || e.ReceiveRetries < 0:
		return fmt.Errorf("engine retries must not be negative")
	case e.TransmitRetryDelay < 0 || e.ReceiveRetryDelay < 0:
		return fmt.Errorf("engine retry delays must not be negative")
	case e.BufferSize <= 0:
		return fmt.Errorf("engine.buffer_size must be positive")
	case e.MaxPayloadSize <= 0:
		return fmt.Errorf("engine.max_payload_size must be positive")
	case r.Transfer.ChunkSize <= 0:
		return fmt.Errorf("transfer.chunk_size must be positive")
	case r.Transfer.ChunkSize > e.MaxPayloadSize:
		return fmt.Errorf("transfer.chunk_size %d exceeds engine.max_payload_size %d",
			r.Transfer.ChunkSize, e.MaxPayloadSize)
	}
	for name, l := range r.Links {
		if l == nil || l.Target == "" {
			return fmt.Errorf("link %q has no target", name)
		}
	}
	return nil
}

// GetLink retrieves a link by name.
// Returns nil if the link doesn't exist in the registry.
func (r *Registry) GetLink(name string) *Link {
	return r.Links[name]
}

// SetLink creates or replaces a named link.
func (r *Registry) SetLink(name, target, description string) *Link {
	if r.Links == nil {
		r.Links = make(map[string]*Link)
	}
	l := &Link{Target: target, Description: description}
	if old, ok := r.Links[name]; ok {
		l.LastUsed = old.LastUsed
	}
	r.Links[name] = l
	return l
}

// RemoveLink deletes a named link. It reports whether the link existed.
func (r *Registry) RemoveLink(name string) bool {
	if _, ok := r.Links[name]; !ok {
		return false
	}
	delete(r.Links, name)
	return true
}

// TouchLink records a successful use of a named link.
func (r *Registry) TouchLink(name string) {
	if l := r.Links[name]; l != nil {
		l.LastUsed = time.Now()
	}
}

// ResolveTarget returns the target of a named link, or nameOrTarget itself
// when no link has that name.
func (r *Registry) ResolveTarget(nameOrTarget string) string {
	if l := r.Links[nameOrTarget]; l != nil {
		return l.Target
	}
	return nameOrTarget
}
