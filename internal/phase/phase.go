// Package phase derives the current pipeline phase from the published
// signal set and the review verdict. The phase is never stored
// authoritatively; it is recomputed on every read so the pipeline
// survives crashes and external edits.
package phase

import (
	"github.com/lucasnoah/foreman/internal/review"
	"github.com/lucasnoah/foreman/internal/signal"
)

// Phase is the single current stage of the pipeline.
type Phase string

const (
	Init         Phase = "init"
	Planning     Phase = "planning"
	Implementing Phase = "implementing"
	Reviewing    Phase = "reviewing"
	Refining     Phase = "refining"
	Compounding  Phase = "compounding"
	Complete     Phase = "complete"
)

// Signal ids outside the per-role sets.
const (
	SignalPlan     = "plan"
	SignalReview   = "review"
	SignalCompound = "compound"
	SignalPublish  = "publish"
)

// RefineSuffix marks a role's refine-iteration completion signal.
const RefineSuffix = "-refine"

// RefineSignal returns the refine completion signal for a role.
func RefineSignal(role string) string {
	return role + RefineSuffix
}

// RefineSignals returns the refine signal set for the given roles.
func RefineSignals(roles []string) []string {
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = RefineSignal(role)
	}
	return out
}

// Snapshot is everything phase resolution depends on. It is assembled
// by the state store from the signal directory, the review artifact
// and the config, so resolution itself stays pure.
type Snapshot struct {
	Signals         signal.Set
	Verdict         review.Verdict
	PlanExists      bool
	Workers         []string
	ArchivedReviews int
	MaxIterations   int
}

// Outcome is the derived phase plus the refine-loop position.
type Outcome struct {
	Phase     Phase
	Iteration int
	// Escalated means the refine loop is exhausted: the review still
	// fails after the configured number of iterations. The operator
	// must resolve it; the pipeline never falls through to a pass.
	Escalated bool
}

// Resolve computes the phase for a snapshot. Pure: equal snapshots
// always resolve to equal outcomes.
//
// Checks run most-complete-first because later phases subsume the
// signals of earlier ones. A freshly re-submitted refine set must read
// as reviewing even while the previous FAIL artifact is still on disk,
// so the all-refines check runs before the FAIL check.
func Resolve(s Snapshot) Outcome {
	out := Outcome{
		Phase:     resolvePhase(s),
		Iteration: s.ArchivedReviews,
	}
	if s.Signals[SignalReview] && s.Verdict == review.Fail {
		out.Iteration++
	}
	if out.Phase == Refining && s.MaxIterations > 0 && out.Iteration > s.MaxIterations {
		out.Escalated = true
	}
	return out
}

func resolvePhase(s Snapshot) Phase {
	sig := s.Signals
	switch {
	case sig[SignalCompound] && sig[SignalPublish]:
		return Complete
	case sig[SignalReview] && s.Verdict == review.Pass:
		return Compounding
	case len(s.Workers) > 0 && sig.Has(RefineSignals(s.Workers)...):
		return Reviewing
	case sig[SignalReview] && s.Verdict == review.Fail:
		return Refining
	case len(s.Workers) > 0 && sig.Has(s.Workers...):
		return Reviewing
	case sig[SignalPlan]:
		return Implementing
	case s.PlanExists:
		return Planning
	default:
		return Init
	}
}
