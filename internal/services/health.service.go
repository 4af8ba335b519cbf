package services

import (
	"context"
	"fmt"
)

// Pinger is anything the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	deps map[string]Pinger
}

func NewHealthService(deps map[string]Pinger) *HealthService {
	return &HealthService{deps: deps}
}

// Check pings every dependency and reports the first failure.
func (s *HealthService) Check(ctx context.Context) error {
	for name, dep := range s.deps {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
