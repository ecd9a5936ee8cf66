package sso

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/observability"
)

// Janitor periodically drops expired auth states and reclaims domain
// routings that were claimed but never verified. Redis-backed state stores
// expire records through TTLs and turn that half of the sweep into a no-op;
// the SQL store needs it to keep the table from growing.
type Janitor struct {
	service *Service
	logger  *observability.Logger
	metrics *observability.Metrics
	cron    *cron.Cron
}

// NewJanitor schedules a state sweep on the given cron spec, e.g.
// "@every 5m". metrics may be nil.
func NewJanitor(service *Service, logger *observability.Logger, metrics *observability.Metrics, schedule string) (*Janitor, error) {
	j := &Janitor{
		service: service,
		logger:  logger.WithField("component", "sso-janitor"),
		metrics: metrics,
		cron:    cron.New(),
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	defer observability.RecoverPanic(j.logger, "auth state sweep")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := j.service.CleanupExpiredStates(ctx)
	if err != nil {
		j.logger.WithError(err).Error("expired state sweep failed")
		return
	}
	if j.metrics != nil {
		j.metrics.StatesSweptTotal.Add(float64(deleted))
	}
	if deleted > 0 {
		j.logger.WithField("deleted", deleted).Info("swept expired auth states")
	}

	reclaimed, err := j.service.CleanupStaleRoutings(ctx)
	if err != nil {
		j.logger.WithError(err).Error("stale routing sweep failed")
		return
	}
	if reclaimed > 0 {
		j.logger.WithField("deleted", reclaimed).Info("reclaimed stale unverified domains")
	}
}
