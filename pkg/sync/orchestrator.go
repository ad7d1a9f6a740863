package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/hollowfen/pasture/pkg/auth"
	"github.com/hollowfen/pasture/pkg/clock"
	"github.com/hollowfen/pasture/pkg/events"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/remote"
	"github.com/hollowfen/pasture/pkg/repositories/models"
	"github.com/hollowfen/pasture/pkg/storage"
)

// RemoteStore is the backend surface the orchestrator needs. The REST
// client implements it.
type RemoteStore interface {
	Online(ctx context.Context) bool
	Reachable(ctx context.Context) bool
	Push(ctx context.Context, envelope *storage.SaveEnvelope) error
	Pull(ctx context.Context) (*storage.SaveEnvelope, error)
	Info(ctx context.Context) (*models.SaveInfo, error)
	Delete(ctx context.Context) error
}

// Identity is the slice of the auth gateway the orchestrator needs.
type Identity interface {
	Configured() bool
	CurrentUser() *auth.User
}

// Orchestrator reconciles the local save slot with the backend. The
// newer save wins. Runs are serialized: a second Sync call blocks until
// the current run finishes.
type Orchestrator struct {
	store    storage.Store
	remote   RemoteStore
	identity Identity
	clk      clock.Clock
	policy   Policy

	runLock stdsync.Mutex

	stateLock stdsync.Mutex
	state     State
	emitter   *events.Emitter[State]
}

type NewOrchestratorOptions struct {
	Store    storage.Store
	Remote   RemoteStore
	Identity Identity
	// Clock defaults to the system clock.
	Clock clock.Clock
	// Policy defaults to DefaultPolicy.
	Policy *Policy
}

func NewOrchestrator(opts NewOrchestratorOptions) *Orchestrator {
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	return &Orchestrator{
		store:    opts.Store,
		remote:   opts.Remote,
		identity: opts.Identity,
		clk:      clk,
		policy:   policy,
		state:    State{Status: StatusIdle},
		emitter:  events.NewEmitter[State](),
	}
}

// State returns a snapshot of the current sync state.
func (o *Orchestrator) State() State {
	o.stateLock.Lock()
	defer o.stateLock.Unlock()
	return o.state
}

// OnStateChange registers a listener for state transitions and returns
// a function that removes it.
func (o *Orchestrator) OnStateChange(listener func(State)) func() {
	return o.emitter.Subscribe(listener)
}

// Sync reconciles local and remote saves in whichever direction the
// timestamps dictate.
func (o *Orchestrator) Sync(ctx context.Context) (*Result, error) {
	return o.run(ctx, o.syncOnce)
}

// ForcePush uploads the local save regardless of which side is newer.
// The local save must exist.
func (o *Orchestrator) ForcePush(ctx context.Context) (*Result, error) {
	return o.run(ctx, o.pushOnce)
}

// ForcePull downloads the remote save regardless of which side is
// newer, overwriting the local slot.
func (o *Orchestrator) ForcePull(ctx context.Context) (*Result, error) {
	return o.run(ctx, o.pullOnce)
}

func (o *Orchestrator) run(ctx context.Context, once func(ctx context.Context) (*Result, error)) (*Result, error) {
	o.runLock.Lock()
	defer o.runLock.Unlock()

	if err := o.checkPreconditions(ctx); err != nil {
		return nil, err
	}

	o.publish(func(s *State) {
		s.Status = StatusSyncing
		s.RetriesUsed = 0
		s.LastError = ""
	})

	var result *Result
	var err error
	for attempt := 0; ; attempt++ {
		result, err = once(ctx)
		if err == nil {
			break
		}
		if auth.IsNotAuthenticated(err) || remote.IsNotFound(err) {
			// Retrying cannot fix these.
			o.fail(err, attempt)
			return nil, err
		}
		if remote.IsOffline(err) || !o.remote.Online(ctx) {
			log.Warn("Sync aborted, device went offline: %v", err)
			o.publish(func(s *State) {
				s.Status = StatusOffline
				s.RetriesUsed = attempt
			})
			return nil, &remote.ErrOffline{}
		}
		if attempt >= o.policy.MaxRetries {
			o.fail(err, attempt)
			return nil, fmt.Errorf("sync failed after %d retries: %v", o.policy.MaxRetries, err)
		}

		delay := o.policy.Delay(attempt)
		log.Warn("Sync attempt %d failed, retrying in %s: %v", attempt+1, delay, err)
		o.publish(func(s *State) {
			s.Status = StatusRetrying
			s.RetriesUsed = attempt + 1
		})
		o.clk.Sleep(ctx, delay)
		if ctx.Err() != nil {
			o.fail(ctx.Err(), attempt)
			return nil, ctx.Err()
		}
	}

	result.RetriesUsed = o.State().RetriesUsed
	o.publish(func(s *State) {
		s.Status = StatusSynced
		s.LastSyncedAt = result.SyncedAt
		s.LastError = ""
	})
	log.Info("Sync complete: %s (savedAt=%d)", result.Direction, result.SyncedAt)
	return result, nil
}

// checkPreconditions is ordered: missing configuration and a missing
// network both mean offline mode, a missing user is an error.
func (o *Orchestrator) checkPreconditions(ctx context.Context) error {
	if !o.identity.Configured() {
		o.publish(func(s *State) {
			s.Status = StatusOffline
		})
		return &auth.ErrNotConfigured{}
	}
	if !o.remote.Online(ctx) {
		o.publish(func(s *State) {
			s.Status = StatusOffline
		})
		return &remote.ErrOffline{}
	}
	if o.identity.CurrentUser() == nil {
		err := &auth.ErrNotAuthenticated{}
		o.publish(func(s *State) {
			s.Status = StatusError
			s.LastError = err.Error()
		})
		return err
	}
	return nil
}

func (o *Orchestrator) syncOnce(ctx context.Context) (*Result, error) {
	if err := o.probe(ctx); err != nil {
		return nil, err
	}

	localInfo, err := o.store.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read local save info: %v", err)
	}

	remoteExists := true
	var remoteSavedAt int64
	remoteInfo, err := o.remote.Info(ctx)
	if err != nil {
		if !remote.IsNotFound(err) {
			return nil, err
		}
		remoteExists = false
	} else {
		remoteSavedAt = remoteInfo.SavedAt
	}

	direction := Decide(localInfo.Exists, localInfo.SavedAt, remoteExists, remoteSavedAt)
	switch direction {
	case DirectionPush:
		return o.push(ctx)
	case DirectionPull:
		return o.pull(ctx)
	default:
		return &Result{Direction: DirectionNone, SyncedAt: localInfo.SavedAt}, nil
	}
}

func (o *Orchestrator) pushOnce(ctx context.Context) (*Result, error) {
	if err := o.probe(ctx); err != nil {
		return nil, err
	}
	return o.push(ctx)
}

func (o *Orchestrator) pullOnce(ctx context.Context) (*Result, error) {
	if err := o.probe(ctx); err != nil {
		return nil, err
	}
	return o.pull(ctx)
}

// probe treats an unreachable backend as a retryable failure.
func (o *Orchestrator) probe(ctx context.Context) error {
	if !o.remote.Reachable(ctx) {
		return &remote.ErrUnreachable{Err: fmt.Errorf("health check failed")}
	}
	return nil
}

func (o *Orchestrator) push(ctx context.Context) (*Result, error) {
	envelope, err := o.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load local save: %v", err)
	}
	if err := o.remote.Push(ctx, envelope); err != nil {
		return nil, err
	}
	return &Result{Direction: DirectionPush, SyncedAt: envelope.SavedAt}, nil
}

func (o *Orchestrator) pull(ctx context.Context) (*Result, error) {
	envelope, err := o.remote.Pull(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.store.Replace(ctx, envelope); err != nil {
		return nil, fmt.Errorf("failed to store pulled save: %v", err)
	}
	return &Result{Direction: DirectionPull, SyncedAt: envelope.SavedAt}, nil
}

func (o *Orchestrator) fail(err error, attempt int) {
	o.publish(func(s *State) {
		s.Status = StatusError
		s.RetriesUsed = attempt
		s.LastError = err.Error()
	})
}

func (o *Orchestrator) publish(mutate func(*State)) {
	o.stateLock.Lock()
	mutate(&o.state)
	snapshot := o.state
	o.stateLock.Unlock()
	o.emitter.Publish(snapshot)
}
