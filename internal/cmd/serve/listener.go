package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
)

// RunningServer holds the listening HTTP server so callers can read back the
// actual bound port (useful when Port is 0) and shut it down gracefully.
type RunningServer struct {
	Addr   net.Addr
	Port   int
	server *http.Server
}

// Close gracefully shuts down the HTTP server.
func (r *RunningServer) Close(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// StartHTTPServer starts a plain net/http server wrapping handler, serving
// TLS when both a cert and key file are configured and plaintext otherwise.
// Unlike the teacher's single-port cmux dual-stack listener, there is no
// gRPC surface to multiplex here — one protocol, one listener.
func StartHTTPServer(cfg config.ListenerConfig, handler http.Handler) (*RunningServer, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen failed: %w", err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			_ = lis.Close()
			return nil, fmt.Errorf("loading tls certificate: %w", err)
		}
		lis = tls.NewListener(lis, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "err", err)
		}
	}()

	port := cfg.Port
	if tcpAddr, ok := lis.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &RunningServer{Addr: lis.Addr(), Port: port, server: srv}, nil
}
