package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// Phase is a discrete unit of work in a build.
type Phase func(ctx context.Context, bs *buildState) error

// PhaseErrorKind enumerates structured phase error categories.
type PhaseErrorKind string

const (
	PhaseErrorFatal    PhaseErrorKind = "fatal"    // build must abort
	PhaseErrorWarning  PhaseErrorKind = "warning"  // record and continue
	PhaseErrorCanceled PhaseErrorKind = "canceled" // context cancellation
)

// PhaseError carries a category and the underlying cause.
type PhaseError struct {
	Kind  PhaseErrorKind
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return fmt.Sprintf("%s phase %s: %v", e.Kind, e.Phase, e.Err) }
func (e *PhaseError) Unwrap() error { return e.Err }

func newFatalPhaseError(phase string, err error) *PhaseError {
	return &PhaseError{Kind: PhaseErrorFatal, Phase: phase, Err: err}
}
func newWarnPhaseError(phase string, err error) *PhaseError {
	return &PhaseError{Kind: PhaseErrorWarning, Phase: phase, Err: err}
}
func newCanceledPhaseError(phase string, err error) *PhaseError {
	return &PhaseError{Kind: PhaseErrorCanceled, Phase: phase, Err: err}
}

type namedPhase struct {
	name string
	fn   Phase
}

// runPhases executes phases in order, recording timings, emitting metrics,
// and stopping on the first fatal or canceled error. Warnings are recorded
// and the run continues.
func (o *Orchestrator) runPhases(ctx context.Context, bs *buildState, phases []namedPhase) error {
	for _, ph := range phases {
		select {
		case <-ctx.Done():
			pe := newCanceledPhaseError(ph.name, ctx.Err())
			bs.report.Errors = append(bs.report.Errors, pe)
			bs.report.PhaseErrorKinds[ph.name] = string(pe.Kind)
			o.recorder.IncPhaseResult(ph.name, metrics.ResultCanceled)
			return pe
		default:
		}

		t0 := time.Now()
		err := ph.fn(ctx, bs)
		dur := time.Since(t0)
		bs.report.PhaseTimings[ph.name] = dur
		o.recorder.ObservePhaseDuration(ph.name, dur)

		if err == nil {
			o.recorder.IncPhaseResult(ph.name, metrics.ResultSuccess)
			continue
		}

		var pe *PhaseError
		if !errors.As(err, &pe) {
			pe = newFatalPhaseError(ph.name, err)
		}
		bs.report.PhaseErrorKinds[ph.name] = string(pe.Kind)

		switch pe.Kind {
		case PhaseErrorWarning:
			bs.report.Warnings = append(bs.report.Warnings, pe)
			o.recorder.IncPhaseResult(ph.name, metrics.ResultWarning)
			o.log.Warn("build phase completed with warning",
				logfields.Phase(ph.name), logfields.Error(pe.Err))
		case PhaseErrorCanceled:
			bs.report.Errors = append(bs.report.Errors, pe)
			o.recorder.IncPhaseResult(ph.name, metrics.ResultCanceled)
			return pe
		default:
			bs.report.Errors = append(bs.report.Errors, pe)
			o.recorder.IncPhaseResult(ph.name, metrics.ResultFatal)
			return pe
		}
	}
	return nil
}
