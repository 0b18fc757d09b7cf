package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

type Status string

const (
	StatusSubmitted  Status = "Submitted"
	StatusNotStarted Status = "NotStarted"
	StatusRunning    Status = "Running"
	StatusSucceeded  Status = "Succeeded"
	StatusFailed     Status = "Failed"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// tracker follows a remote job through
// Submitted -> {NotStarted, Running} -> {Succeeded, Failed}.
type tracker struct {
	machine *fsm.FSM
}

func newTracker() *tracker {
	pending := []string{string(StatusSubmitted), string(StatusNotStarted), string(StatusRunning)}
	return &tracker{
		machine: fsm.NewFSM(
			string(StatusSubmitted),
			fsm.Events{
				{Name: string(StatusNotStarted), Src: []string{string(StatusSubmitted), string(StatusNotStarted)}, Dst: string(StatusNotStarted)},
				{Name: string(StatusRunning), Src: pending, Dst: string(StatusRunning)},
				{Name: string(StatusSucceeded), Src: pending, Dst: string(StatusSucceeded)},
				{Name: string(StatusFailed), Src: pending, Dst: string(StatusFailed)},
			},
			fsm.Callbacks{},
		),
	}
}

func (t *tracker) Current() Status {
	return Status(t.machine.Current())
}

// Observe applies a polled status. Repeating the current status is not an
// error; moving backwards or leaving a terminal state is.
func (t *tracker) Observe(ctx context.Context, s Status) error {
	err := t.machine.Event(ctx, string(s))
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	var unknown fsm.UnknownEventError
	if errors.As(err, &unknown) {
		return fmt.Errorf("unexpected job status %q", s)
	}
	return fmt.Errorf("job status %s -> %s: %w", t.Current(), s, err)
}
