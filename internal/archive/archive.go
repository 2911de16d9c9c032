package archive

import (
	"log/slog"

	"curio/internal/archive/handler"
	"curio/internal/archive/service"
)

// Service exposes archive registry orchestration.
type Service = service.Service

// Handler wires HTTP endpoints to the archive service.
type Handler = handler.Handler

// NewService constructs the archive service over a registry.
func NewService(registry service.Registry, opts ...service.Option) *Service {
	return service.New(registry, opts...)
}

// NewHandler constructs an HTTP handler for archive routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
