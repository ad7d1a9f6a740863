package workers

import (
	"context"
	"time"

	"github.com/hollowfen/pasture/pkg/auth"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/remote"
	pasturesync "github.com/hollowfen/pasture/pkg/sync"
)

// Syncer triggers a reconciliation run. The sync orchestrator
// implements it.
type Syncer interface {
	Sync(ctx context.Context) (*pasturesync.Result, error)
}

// SyncWorker runs a sync periodically and whenever a trigger arrives,
// typically after a local save or when connectivity returns.
type SyncWorker struct {
	syncer      Syncer
	triggerChan <-chan struct{}
	interval    time.Duration
}

type NewSyncWorkerOptions struct {
	Syncer      Syncer
	TriggerChan <-chan struct{}
	Interval    time.Duration
}

func NewSyncWorker(opts NewSyncWorkerOptions) *SyncWorker {
	return &SyncWorker{
		syncer:      opts.Syncer,
		triggerChan: opts.TriggerChan,
		interval:    opts.Interval,
	}
}

func (w *SyncWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.triggerChan:
			w.sync(ctx)
		case <-ticker.C:
			w.sync(ctx)
		}
	}
}

func (w *SyncWorker) sync(ctx context.Context) {
	if _, err := w.syncer.Sync(ctx); err != nil {
		// Being offline or signed out is a normal state for the worker.
		if remote.IsOffline(err) || auth.IsNotConfigured(err) || auth.IsNotAuthenticated(err) {
			log.Debug("Sync skipped: %v", err)
			return
		}
		log.Warn("Background sync failed: %v", err)
	}
}
