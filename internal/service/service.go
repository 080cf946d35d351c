// Package service wires configuration and external collaborators into a
// running Operator and exposes the lifecycle surface a host process drives.
package service

import (
	"context"
	"fmt"

	"github.com/trainkit/trainkit/internal/operator"
	"github.com/trainkit/trainkit/pkg/config"
	"github.com/trainkit/trainkit/pkg/utils"
)

// Service owns the Operator and the lifecycle glue a host process (CLI,
// daemon, test harness) drives it through.
type Service struct {
	config   *config.Config
	logger   utils.Logger
	operator *operator.Operator

	running bool
}

// New constructs the Operator from cfg and deps and returns a Service ready
// to Start. deps.Logger defaults to logger (or the global logger) if unset.
func New(cfg *config.Config, deps operator.Deps, logger utils.Logger) (*Service, error) {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}

	op, err := operator.New(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}

	return &Service{
		config:   cfg,
		logger:   logger,
		operator: op,
	}, nil
}

// Operator returns the underlying Operator, for callers that need to attach
// hooks or inspect the network directly.
func (s *Service) Operator() *operator.Operator {
	return s.operator
}

// Start transitions the operator to Running. If ctx is cancelled, the
// service stops the operator in the background.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting service...")

	if err := s.operator.Start(); err != nil {
		return fmt.Errorf("failed to start operator: %w", err)
	}
	s.running = true
	s.logger.Info("Service started successfully")

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Error("Failed to stop service on context cancellation: %v", err)
		}
	}()

	return nil
}

// Stop transitions the operator to Stopped.
func (s *Service) Stop() error {
	s.logger.Info("Stopping service...")

	if s.operator != nil {
		if err := s.operator.SignalStop(); err != nil {
			s.logger.Warn("Operator stop: %v", err)
		}
	}

	s.running = false
	s.logger.Info("Service stopped")
	return nil
}

// IsRunning returns whether the service believes itself to be running.
func (s *Service) IsRunning() bool {
	return s.running
}

// Stats returns service-level statistics, including the operator's
// orchestration snapshot.
func (s *Service) Stats() ServiceStats {
	stats := ServiceStats{Running: s.running}
	if s.operator != nil {
		stats.Operator = s.operator.Stats()
	}
	return stats
}

// HealthCheck reports whether the service has a usable operator.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.operator == nil {
		return fmt.Errorf("operator not initialized")
	}
	return nil
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	Running  bool           `json:"running"`
	Operator operator.Stats `json:"operator"`
}
