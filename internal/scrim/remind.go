package scrim

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brawlbase/scrim-bot/internal/obslog"
)

// Reminders holds the deferred scrim prompts. Each scheduled scrim owns at
// most one job, and cancelling the scrim removes the job before it fires.
type Reminders struct {
	sched gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

func NewReminders() (*Reminders, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()
	return &Reminders{sched: sched, jobs: make(map[string]uuid.UUID)}, nil
}

// Schedule arms fn for the given instant. An instant already in the past
// fires immediately instead of sleeping a negative duration.
func (r *Reminders) Schedule(scrimID string, at time.Time, fn func()) error {
	if !at.After(time.Now()) {
		obslog.L().Info("scrim_remind_immediate", zap.String("scrim_id", scrimID))
		go fn()
		return nil
	}
	job, err := r.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func() {
			r.forget(scrimID)
			fn()
		}),
	)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.jobs[scrimID] = job.ID()
	r.mu.Unlock()
	obslog.L().Info("scrim_remind_armed", zap.String("scrim_id", scrimID), zap.Time("at", at))
	return nil
}

// Cancel removes a pending reminder; a reminder that already fired or was
// never armed is a no-op.
func (r *Reminders) Cancel(scrimID string) {
	r.mu.Lock()
	id, ok := r.jobs[scrimID]
	delete(r.jobs, scrimID)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.sched.RemoveJob(id); err != nil {
		obslog.L().Warn("scrim_remind_cancel", zap.String("scrim_id", scrimID), zap.Error(err))
	}
}

func (r *Reminders) forget(scrimID string) {
	r.mu.Lock()
	delete(r.jobs, scrimID)
	r.mu.Unlock()
}

func (r *Reminders) Shutdown() error {
	return r.sched.Shutdown()
}
