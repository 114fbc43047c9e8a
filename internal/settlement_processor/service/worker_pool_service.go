package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
)

// WorkerPoolSettlementService bounds how many settlements run against the
// shards at once, whatever the number of topic consumers feeding it.
type WorkerPoolSettlementService struct {
	baseService SettlementService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolSettlementService(
	baseService SettlementService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolSettlementService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolSettlementService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// Apply runs the event on a pooled worker and waits for its result.
func (s *WorkerPoolSettlementService) Apply(ctx context.Context, event *SettlementEvent) error {
	eventCopy := *event
	resultChan := make(chan error, 1)

	err := s.pool.Submit(func() {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("Settlement worker panicked", "transaction_id", eventCopy.TransactionID.String(), "panic", p)
				resultChan <- fmt.Errorf("settlement worker panicked: %v", p)
			}
		}()
		resultChan <- s.baseService.Apply(ctx, &eventCopy)
	})
	if err != nil {
		s.logger.Error("Failed to submit settlement to worker pool",
			"transaction_id", event.TransactionID.String(),
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolSettlementService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

func (s *WorkerPoolSettlementService) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolSettlementService) Capacity() int {
	return s.pool.Cap()
}
