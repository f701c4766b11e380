// Package zombie reaps jobs whose worker went silent mid-run.
package zombie

import (
	"context"
	"encoding/json"
	"time"

	"github.com/windmill-labs/windmill-worker/internal/events"
	"github.com/windmill-labs/windmill-worker/internal/metrics"
	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// Reaper periodically scans the queue for jobs whose last_ping has gone
// stale and either releases them back to the pool or fails them outright,
// depending on whether they can be safely retried elsewhere.
type Reaper struct {
	q        queue.Client
	emit     events.Emitter
	metrics  *metrics.Registry
	log      logger.Logger
	interval time.Duration
	ttlMult  time.Duration
}

// New builds a Reaper. interval is how often it scans; ttlMult is the
// staleness window: a running job whose last_ping is older than now minus
// ttlMult counts as a zombie.
func New(q queue.Client, emit events.Emitter, m *metrics.Registry, interval time.Duration, ttlMult time.Duration) *Reaper {
	return &Reaper{
		q:        q,
		emit:     emit,
		metrics:  m,
		log:      logger.Default().WithComponent("zombie"),
		interval: interval,
		ttlMult:  ttlMult,
	}
}

// Run blocks, scanning on Reaper's interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.ReapOnce(ctx); err != nil {
				r.log.Warn("zombie reap pass failed", "error", err.Error())
			}
		case <-ctx.Done():
			return
		}
	}
}

// ReapOnce runs a single scan pass, releasing restartable zombies and
// failing unrecoverable ones. Flow jobs are skipped.
func (r *Reaper) ReapOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-r.ttlMult)
	zombies, err := r.q.ListZombies(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, job := range zombies {
		if job.JobKind == queue.KindFlow {
			continue
		}

		if !job.SameWorker {
			if err := r.q.ReleaseZombie(ctx, job.ID); err != nil {
				r.log.Warn("failed to release zombie", "job_id", job.ID, "error", err.Error())
				continue
			}
			r.log.Info("released restartable zombie", "job_id", job.ID, "worker", derefStr(job.Worker))
			r.emit.EmitZombieReclaimed(job.ID)
			if r.metrics != nil {
				r.metrics.ZombiesReclaimed.Inc()
			}
			continue
		}

		result, _ := json.Marshal(map[string]string{"error": "Same worker job timed out"})
		if err := r.q.Complete(ctx, job, false, result, job.Logs); err != nil {
			r.log.Warn("failed to fail unrecoverable zombie", "job_id", job.ID, "error", err.Error())
			continue
		}
		r.log.Info("failed unrecoverable same-worker zombie", "job_id", job.ID)
		r.emit.EmitZombieKilled(job.ID, "same worker job timed out")
		if r.metrics != nil {
			r.metrics.ZombiesKilled.Inc()
		}
	}

	return nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
