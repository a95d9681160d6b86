// Package runstate persists a record of every engine run.
//
// Each run gets a directory <dir>/runs/<run-id>/ holding run.json and, for a
// run that did not succeed, failure.json with the classified root cause.
package runstate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is the persistent record of one execution attempt.
type Run struct {
	RunID     string            `json:"run_id"`
	GraphHash string            `json:"graph_hash"`
	StartTime time.Time         `json:"start_time"`
	EndTime   *time.Time        `json:"end_time"`
	Status    RunStatus         `json:"status"`
	Pipelines map[string]string `json:"pipelines"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	// A run rejected during graph validation has no graph hash.
	if strings.TrimSpace(r.GraphHash) == "" && r.Status != RunStatusFailed {
		errs = append(errs, errors.New("graph_hash is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	switch r.Status {
	case RunStatusRunning:
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		if r.EndTime == nil {
			errs = append(errs, fmt.Errorf("end_time is required for status %q", r.Status))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if r.Pipelines == nil {
		errs = append(errs, errors.New("pipelines must be an object (not null)"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

type FailureClass string

const (
	FailureClassGraph     FailureClass = "graph"
	FailureClassExecution FailureClass = "execution"
	FailureClassCancelled FailureClass = "cancelled"
	FailureClassSystem    FailureClass = "system"
)

// Failure is a recorded run termination reason.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	Pipeline     *string      `json:"pipeline,omitempty"`
	Module       *string      `json:"module,omitempty"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassGraph, FailureClassExecution, FailureClassCancelled, FailureClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	if f.Pipeline != nil && strings.TrimSpace(*f.Pipeline) == "" {
		errs = append(errs, errors.New("pipeline must not be empty when provided"))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
