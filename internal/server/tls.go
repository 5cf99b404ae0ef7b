package server

import (
	"crypto/tls"
	"fmt"

	"github.com/muurk/pktlink/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig creates the TLS configuration of the TCP listener from a
// PEM certificate and key.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("both a certificate and a key are required for TLS")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)

	return buildTLSConfig(cert), nil
}

func buildTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}

// GetTLSInfo returns human-readable TLS configuration information
func GetTLSInfo(config *tls.Config) map[string]interface{} {
	maxVersion := "TLS 1.3"
	if config.MaxVersion != 0 {
		maxVersion = tls.VersionName(config.MaxVersion)
	}
	return map[string]interface{}{
		"min_version":     tls.VersionName(config.MinVersion),
		"max_version":     maxVersion,
		"num_certs":       len(config.Certificates),
		"session_tickets": !config.SessionTicketsDisabled,
	}
}
