package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/pktlink/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 1 << 20
)

// Upgrader upgrades HTTP requests on the WebSocket endpoint.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebSocket presents a WebSocket connection as a byte stream. Each Write
// sends one binary message; Read drains messages in order and ignores text
// messages.
//
// After a read deadline expires the connection is unusable, so a timeout
// ends the stream.
type WebSocket struct {
	conn   *websocket.Conn
	reader io.Reader

	writeMu sync.Mutex
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	conn.SetReadLimit(maxMessageSize)
	return &WebSocket{conn: conn}
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string, tlsConfig *tls.Config) (*WebSocket, error) {
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = tlsConfig

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return NewWebSocket(conn), nil
}

// Accept upgrades an HTTP request to a WebSocket stream.
func Accept(w http.ResponseWriter, r *http.Request) (*WebSocket, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	logging.LogConnection(r.RemoteAddr, "websocket_upgraded")
	return NewWebSocket(conn), nil
}

func (s *WebSocket) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			mt, r, err := s.conn.NextReader()
			if err != nil {
				return 0, mapCloseError(err)
			}
			if mt != websocket.BinaryMessage {
				logging.Debug("Ignoring non-binary WebSocket message", zap.Int("type", mt))
				continue
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, mapCloseError(err)
	}
}

func (s *WebSocket) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return 0, err
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, mapCloseError(err)
	}
	return len(p), nil
}

func (s *WebSocket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Close sends a close message and closes the connection.
func (s *WebSocket) Close() error {
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

// RemoteAddr returns the peer address.
func (s *WebSocket) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// mapCloseError turns an orderly close into io.EOF.
func mapCloseError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}
