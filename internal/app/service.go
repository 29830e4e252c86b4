package app

import (
	"context"
	"errors"
	"log"
	stdhttp "net/http"

	"studio-store/internal/config"
	"studio-store/internal/http"
)

const serverAddrPrefix = ":"

// Service represents the running application
type Service struct {
	config   *config.Config
	backends *Backends
	server   *http.Server
}

// Start serves HTTP until Shutdown is called. A graceful shutdown is not an error.
func (s *Service) Start() error {
	log.Printf("Starting HTTP server on port %s", s.config.Server.Port)
	err := s.server.Start(serverAddrPrefix + s.config.Server.Port)
	if errors.Is(err, stdhttp.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, then releases the stores.
func (s *Service) Shutdown(ctx context.Context) error {
	serverErr := s.server.Shutdown(ctx)
	return errors.Join(serverErr, s.backends.Close())
}
