// Package janitor runs the periodic maintenance sweep that rejects
// pending approvals past their expiry.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowentxo/agentinbox/internal/approvals"
)

// sweepTimeout bounds one expiry sweep.
const sweepTimeout = 30 * time.Second

// Janitor schedules approval expiry on a cron expression.
type Janitor struct {
	machine *approvals.Machine
	cron    *cron.Cron
	logger  *slog.Logger
}

// New creates a janitor sweeping on the given cron schedule
// (e.g. "*/5 * * * *").
func New(machine *approvals.Machine, schedule string, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		machine: machine,
		cron:    cron.New(),
		logger:  logger,
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	expired, err := j.machine.ExpireStale(ctx, time.Now())
	if err != nil {
		j.logger.Error("approval expiry sweep failed", "error", err)
		return
	}
	if expired > 0 {
		j.logger.Info("expired stale approvals", "count", expired)
	}
}
