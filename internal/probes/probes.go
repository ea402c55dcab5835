// Package probes implements the diagnostic checks CheckPulse can run:
// http, ping, tcp, traceroute and dns. Each check is a Prober; Execute
// wraps a prober invocation with the bookkeeping every caller needs
// (panic recovery, id stamping, elapsed-time fallback) so the worker
// pool and the remote agent share identical execution semantics.
package probes

import (
	"context"
	"fmt"
	"time"

	"github.com/culture-union/checkpulse/models"
)

// Prober runs one check type against a task's target. Probers return a
// Result in all cases; transport failures are encoded as StatusFail and
// misuse as StatusError, never as a Go error.
type Prober interface {
	Probe(ctx context.Context, task models.Task) models.Result
}

// Set maps each concrete check type to its prober. The full type has no
// prober; a full task is a fan-out anchor and is never executed.
type Set map[models.CheckType]Prober

// DefaultSet returns the standard probers, all bounded by timeout.
func DefaultSet(timeout time.Duration) Set {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return Set{
		models.CheckHTTP:       NewHTTPProber(timeout),
		models.CheckPing:       NewPingProber(timeout),
		models.CheckTCP:        NewTCPProber(timeout),
		models.CheckTraceroute: NewTracerouteProber(timeout),
		models.CheckDNS:        NewDNSProber(timeout),
	}
}

// Execute runs the task against the matching prober in set. It stamps
// the task's id and group id onto the result, converts a prober panic
// into a StatusError result, and fills ResponseTime with wall-clock
// elapsed seconds when the prober left it unset. An unknown or
// unexecutable check type yields StatusError.
func Execute(ctx context.Context, set Set, task models.Task) (result models.Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = models.Result{
				Status: models.StatusError,
				Error:  fmt.Sprintf("check panicked: %v", r),
			}
		}
		result.ID = task.ID
		result.GroupID = task.GroupID
		if result.ResponseTime == nil {
			elapsed := time.Since(start).Seconds()
			result.ResponseTime = &elapsed
		}
	}()

	prober, ok := set[task.Type]
	if !ok {
		return models.Result{
			Status: models.StatusError,
			Error:  fmt.Sprintf("unsupported check type %q", task.Type),
		}
	}

	return prober.Probe(ctx, task)
}
