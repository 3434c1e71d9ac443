package matchmaking

import (
	"google.golang.org/grpc"
)

// Registrar ties the MatchService into the gRPC server
type Registrar struct {
	service *Service
}

// NewRegistrar creates a new Registrar for the MatchService
func NewRegistrar(service *Service) *Registrar {
	return &Registrar{service: service}
}

// Register attaches the MatchService implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&MatchServiceDesc, r.service)
}
