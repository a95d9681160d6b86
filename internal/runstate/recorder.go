package runstate

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"contentweaver/internal/engine"
)

// Recorder writes run.json and failure.json around an engine run.
type Recorder struct {
	Store *Store

	// Now defaults to time.Now.
	Now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// NewRunID returns a time-ordered unique run ID.
func (r *Recorder) NewRunID() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entropy == nil {
		r.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	id, err := ulid.New(ulid.Timestamp(r.now()), r.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Begin persists a running record for a new run and returns it.
func (r *Recorder) Begin(graphHash string, pipelines []string) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	id, err := r.NewRunID()
	if err != nil {
		return Run{}, fmt.Errorf("run id: %w", err)
	}
	run := Run{
		RunID:     id,
		GraphHash: graphHash,
		StartTime: r.now(),
		Status:    RunStatusRunning,
		Pipelines: make(map[string]string, len(pipelines)),
	}
	for _, p := range pipelines {
		run.Pipelines[p] = "PENDING"
	}
	if err := r.Store.SaveRun(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Finish records the terminal states of a run and, when it did not succeed,
// its root cause.
func (r *Recorder) Finish(run Run, res *engine.Result) (Run, error) {
	if r == nil || r.Store == nil {
		return run, errors.New("Store is required")
	}
	end := r.now()
	run.EndTime = &end
	run.Status = StatusFromResult(res)
	run.Pipelines = make(map[string]string)
	if res != nil {
		for name, st := range res.States {
			run.Pipelines[name] = string(st)
		}
	}
	if err := r.Store.SaveRun(run); err != nil {
		return run, err
	}

	f, failed, err := FailureFromResult(res)
	if err != nil || !failed {
		return run, err
	}
	return run, r.Store.SaveFailure(run.RunID, f)
}

// Abort records a run that ended with an error before producing a result.
func (r *Recorder) Abort(run Run, cause error) (Run, error) {
	if r == nil || r.Store == nil {
		return run, errors.New("Store is required")
	}
	f, err := FailureFromError(cause)
	if err != nil {
		return run, err
	}
	end := r.now()
	run.EndTime = &end
	run.Status = RunStatusFailed
	if f.FailureClass == FailureClassCancelled {
		run.Status = RunStatusCancelled
	}
	if err := r.Store.SaveRun(run); err != nil {
		return run, err
	}
	return run, r.Store.SaveFailure(run.RunID, f)
}

// Reject records a run refused before execution, typically because the
// pipeline graph is invalid. The record has no graph hash.
func (r *Recorder) Reject(cause error) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	id, err := r.NewRunID()
	if err != nil {
		return Run{}, fmt.Errorf("run id: %w", err)
	}
	now := r.now()
	run := Run{
		RunID:     id,
		StartTime: now,
		EndTime:   &now,
		Status:    RunStatusFailed,
		Pipelines: map[string]string{},
	}
	f, err := FailureFromError(cause)
	if err != nil {
		return run, err
	}
	if err := r.Store.SaveRun(run); err != nil {
		return run, err
	}
	return run, r.Store.SaveFailure(run.RunID, f)
}
