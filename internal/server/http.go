package server

import (
	"fmt"
	"net/http"

	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/metrics"
	"github.com/muurk/pktlink/internal/stream"
	"go.uber.org/zap"
)

// Routes returns the handler of the WebSocket listener:
//
//	/link     WebSocket upgrade, then the stream is served like a TCP connection
//	/metrics  Prometheus metrics
//	/healthz  liveness probe
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(stream.WebSocketPath, s.handleLink)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	logging.Debug("WebSocket upgrade request",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
		zap.String("origin", r.Header.Get("Origin")),
	)

	ws, err := stream.Accept(w, r)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.serveStream(ws, r.RemoteAddr, TransportWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok %d\n", s.GetActiveConnections())
}
