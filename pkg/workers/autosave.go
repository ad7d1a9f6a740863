package workers

import (
	"context"
	"time"

	"github.com/hollowfen/pasture/pkg/clock"
	"github.com/hollowfen/pasture/pkg/config"
	"github.com/hollowfen/pasture/pkg/game/types"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/storage"
)

// StateProvider supplies the live game state to persist. Snapshot must
// return a copy that is safe to serialize concurrently.
type StateProvider interface {
	Snapshot() (*types.SavedGameState, config.OverrideMap)
}

// SaveRequest asks the worker to persist the current state outside the
// periodic schedule.
type SaveRequest struct {
	// Reason is logged with the save.
	Reason string
}

// AutosaveWorker persists the game state periodically and on request.
// Requested saves are debounced so rapid-fire requests do not hammer
// the disk; the periodic save and Flush always write.
type AutosaveWorker struct {
	store           storage.Store
	provider        StateProvider
	saveRequestChan <-chan SaveRequest
	interval        time.Duration
	minSaveInterval time.Duration
	clk             clock.Clock

	lastSaveAt time.Time
}

type NewAutosaveWorkerOptions struct {
	Store           storage.Store
	Provider        StateProvider
	SaveRequestChan <-chan SaveRequest
	// Interval is the periodic autosave cadence.
	Interval time.Duration
	// MinSaveInterval debounces requested saves.
	MinSaveInterval time.Duration
	// Clock defaults to the system clock.
	Clock clock.Clock
}

// NewAutosaveWorker creates a new AutosaveWorker.
// The worker processes save requests from the game loop and
// periodically saves the game state to the local store.
func NewAutosaveWorker(opts NewAutosaveWorkerOptions) *AutosaveWorker {
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &AutosaveWorker{
		store:           opts.Store,
		provider:        opts.Provider,
		saveRequestChan: opts.SaveRequestChan,
		interval:        opts.Interval,
		minSaveInterval: opts.MinSaveInterval,
		clk:             clk,
	}
}

func (w *AutosaveWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case saveRequest := <-w.saveRequestChan:
			if w.debounced() {
				log.Debug("Skipping requested save (%s), too soon after the last one", saveRequest.Reason)
				continue
			}
			w.save(ctx, saveRequest.Reason)
		case <-ticker.C:
			w.save(ctx, "autosave")
		}
	}
}

// Flush saves immediately, bypassing the debounce. Used on shutdown.
func (w *AutosaveWorker) Flush(ctx context.Context) error {
	state, overrides := w.provider.Snapshot()
	if _, err := w.store.Save(ctx, state, overrides); err != nil {
		return err
	}
	w.lastSaveAt = w.clk.Now()
	return nil
}

func (w *AutosaveWorker) debounced() bool {
	return w.clk.Now().Sub(w.lastSaveAt) < w.minSaveInterval
}

func (w *AutosaveWorker) save(ctx context.Context, reason string) {
	state, overrides := w.provider.Snapshot()
	envelope, err := w.store.Save(ctx, state, overrides)
	if err != nil {
		log.Error("Failed to save game state (%s): %v", reason, err)
		return
	}
	w.lastSaveAt = w.clk.Now()
	log.Debug("Saved game state (%s) at %d", reason, envelope.SavedAt)
}
