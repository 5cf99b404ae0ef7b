package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/pktlink/internal/logging"
	"go.uber.org/zap"
)

// ErrUnsupportedScheme reports a target with an unknown scheme.
var ErrUnsupportedScheme = errors.New("unsupported stream scheme")

// DialOptions configures Dial.
type DialOptions struct {
	// Timeout bounds connection setup. Zero means no timeout beyond ctx.
	Timeout time.Duration

	// TLS configures tls and wss targets. Nil uses system roots.
	TLS *tls.Config
}

// ParseTarget normalises a target into a URL with scheme, host and port.
// A bare host:port is a tcp target.
func ParseTarget(target string) (*url.URL, error) {
	if target == "" {
		return nil, errors.New("empty target")
	}
	if !strings.Contains(target, "://") {
		target = "tcp://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}

	var port int
	switch u.Scheme {
	case "tcp", "tls":
		port = DefaultTCPPort
	case "ws", "wss":
		port = DefaultWebSocketPort
		if u.Path == "" {
			u.Path = WebSocketPath
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("target %q has no host", target)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	return u, nil
}

// Dial opens a stream to target.
//
// Example:
//
//	s, err := stream.Dial(ctx, "ws://192.168.1.20:7071/link", stream.DialOptions{Timeout: 5 * time.Second})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
func Dial(ctx context.Context, target string, opts DialOptions) (Stream, error) {
	u, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	logging.Debug("Dialing stream",
		zap.String("scheme", u.Scheme),
		zap.String("host", u.Host),
	)

	switch u.Scheme {
	case "tcp":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u.Host, err)
		}
		return conn, nil

	case "tls":
		d := tls.Dialer{Config: opts.TLS}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u.Host, err)
		}
		return conn, nil

	default:
		ws, err := DialWebSocket(ctx, u.String(), opts.TLS)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}
}
