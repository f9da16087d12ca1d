package service

import (
	"context"

	"github.com/sirupsen/logrus"
)

// rollback collects compensating steps for a multi-record operation and
// replays them in reverse when a later write fails.
type rollback struct {
	s     *Service
	op    string
	steps []rollbackStep
}

type rollbackStep struct {
	name string
	fn   func(ctx context.Context) error
}

func (s *Service) newRollback(op string) *rollback {
	return &rollback{s: s, op: op}
}

func (r *rollback) add(name string, fn func(ctx context.Context) error) {
	r.steps = append(r.steps, rollbackStep{name: name, fn: fn})
}

func (r *rollback) run(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(r.steps) - 1; i >= 0; i-- {
		step := r.steps[i]
		if err := step.fn(ctx); err != nil {
			r.s.logger.WithFields(logrus.Fields{
				"module":   "service",
				"funcName": r.op,
				"step":     step.name,
			}).Errorf("compensation failed, records may be inconsistent: %v", err)
		}
	}
	r.steps = nil
}
