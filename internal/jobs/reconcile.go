package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fundsflow.org/internal/audit"
	"fundsflow.org/internal/obs"
	"fundsflow.org/internal/wallet"
)

// Reconciler periodically compares wallet balances with provider balances
// and publishes the open discrepancy count.
type Reconciler struct {
	repo     wallet.Repository
	now      func() time.Time
	schedule cron.Schedule
	cron     *cron.Cron

	mu     sync.Mutex
	lastAt time.Time
	last   []wallet.Discrepancy
}

// NewReconciler parses a standard five-field cron schedule.
func NewReconciler(schedule string, repo wallet.Repository, now func() time.Time) (*Reconciler, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse reconcile schedule %q: %w", schedule, err)
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{repo: repo, now: now, schedule: sched}, nil
}

// RunOnce reconciles every wallet and returns the number of open discrepancies.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	wallets, err := r.repo.ListWallets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list wallets: %w", err)
	}
	external, err := r.repo.ExternalBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("external balances: %w", err)
	}
	at := r.now()
	ds := wallet.Discrepancies(wallets, external, at)
	open := wallet.OpenCount(ds)

	r.mu.Lock()
	r.lastAt, r.last = at, ds
	r.mu.Unlock()

	obs.SetOpenDiscrepancies(open)
	_ = audit.LogEvent(ctx, "wallet.reconciled", map[string]any{
		"checked": len(ds),
		"open":    open,
	})
	return open, nil
}

// Last returns when the most recent run happened and what it found. at is
// zero before the first run.
func (r *Reconciler) Last() (at time.Time, ds []wallet.Discrepancy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wallet.Discrepancy, len(r.last))
	copy(out, r.last)
	return r.lastAt, out
}

// Next reports when the schedule fires after t.
func (r *Reconciler) Next(t time.Time) time.Time { return r.schedule.Next(t) }

// Start runs the reconciler on its schedule until Stop is called.
func (r *Reconciler) Start() {
	r.cron = cron.New()
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			obs.Logger().Error().Err(err).Msg("reconcile_failed")
		}
	}))
	r.cron.Start()
}

// Stop halts the schedule and waits for a running job to finish.
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
