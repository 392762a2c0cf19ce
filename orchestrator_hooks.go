package openpay

import (
	"context"
	"time"
)

// Phase names reported to hooks
const (
	PhaseStartCharge           = "start_charge"
	PhaseStartAuthorization    = "start_authorization"
	PhaseCompleteAuthorization = "complete_authorization"
)

// ============================================================================
// Hook Context Types
// ============================================================================

// PhaseContext contains information passed to phase hooks
type PhaseContext struct {
	Ctx               context.Context
	Phase             string
	WalletAddress     string
	IncomingPaymentID string
	Timestamp         time.Time
}

// PhaseResultContext contains a phase result and its context
type PhaseResultContext struct {
	PhaseContext
	Duration time.Duration
}

// PhaseFailureContext contains a phase failure and its context
type PhaseFailureContext struct {
	PhaseContext
	Error    error
	Duration time.Duration
}

// BeforePhaseResult represents the result of a "before" hook.
// If Abort is true, the phase is not executed and fails with Reason.
type BeforePhaseResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Hook Function Types
// ============================================================================

// BeforePhaseHook is called before a phase executes
type BeforePhaseHook func(ctx *PhaseContext) (*BeforePhaseResult, error)

// AfterPhaseHook is called after a phase completes successfully
type AfterPhaseHook func(ctx *PhaseResultContext) error

// PhaseFailureHook is called when a phase fails
type PhaseFailureHook func(ctx *PhaseFailureContext)

// ============================================================================
// Hook Registration
// ============================================================================

// OnBeforePhase registers a hook called before each orchestration phase
func (o *Orchestrator) OnBeforePhase(hook BeforePhaseHook) *Orchestrator {
	o.beforeHooks = append(o.beforeHooks, hook)
	return o
}

// OnAfterPhase registers a hook called after each successful phase
func (o *Orchestrator) OnAfterPhase(hook AfterPhaseHook) *Orchestrator {
	o.afterHooks = append(o.afterHooks, hook)
	return o
}

// OnPhaseFailure registers a hook called when a phase fails
func (o *Orchestrator) OnPhaseFailure(hook PhaseFailureHook) *Orchestrator {
	o.failureHooks = append(o.failureHooks, hook)
	return o
}

// ============================================================================
// Hook Execution
// ============================================================================

func (o *Orchestrator) runBeforeHooks(ctx *PhaseContext) error {
	for _, hook := range o.beforeHooks {
		result, err := hook(ctx)
		if err != nil {
			return err
		}
		if result != nil && result.Abort {
			return NewFlowError(ErrCodeProtocolError, "phase aborted by hook: "+result.Reason, nil)
		}
	}
	return nil
}

func (o *Orchestrator) runAfterHooks(phaseCtx *PhaseContext, started time.Time) {
	resultCtx := &PhaseResultContext{
		PhaseContext: *phaseCtx,
		Duration:     time.Since(started),
	}
	for _, hook := range o.afterHooks {
		// after-hook errors are observational only
		_ = hook(resultCtx)
	}
}

func (o *Orchestrator) runFailureHooks(phaseCtx *PhaseContext, started time.Time, err error) {
	failureCtx := &PhaseFailureContext{
		PhaseContext: *phaseCtx,
		Error:        err,
		Duration:     time.Since(started),
	}
	for _, hook := range o.failureHooks {
		hook(failureCtx)
	}
}
