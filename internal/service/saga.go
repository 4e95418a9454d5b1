package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/medicalchat/internal/logger"
)

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// Saga records compensating actions for completed steps so that a later
// failure can undo them in reverse order.
type Saga struct {
	log   *logger.Logger
	steps []compensation
}

// NewSaga creates an empty Saga
func NewSaga(log *logger.Logger) *Saga {
	if log == nil {
		log = logger.Nop()
	}
	return &Saga{log: log}
}

// Do runs action and, when it succeeds, records compensate for rollback.
// A nil compensate marks a step with nothing to undo.
func (s *Saga) Do(ctx context.Context, name string, action func(ctx context.Context) error, compensate func(ctx context.Context) error) error {
	if err := action(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if compensate != nil {
		s.steps = append(s.steps, compensation{name: name, undo: compensate})
	}
	return nil
}

// Rollback runs recorded compensations newest first. It keeps going past
// failures and returns them joined. The caller's cancellation does not stop
// the undo.
func (s *Saga) Rollback(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			s.log.Error("compensation failed", "step", step.name, "error", err)
			errs = append(errs, fmt.Errorf("undo %s: %w", step.name, err))
			continue
		}
		s.log.Info("compensation applied", "step", step.name)
	}
	s.steps = nil
	return errors.Join(errs...)
}
