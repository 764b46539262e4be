package engine

import "github.com/Veraticus/the-carbon-must-flow/internal/model"

// TierStatus is the outcome of one resolution tier.
type TierStatus int

// Tier outcomes.
const (
	// Unresolved means the tier had nothing to say; the next tier runs.
	Unresolved TierStatus = iota
	// Resolved means the tier produced an assignment.
	Resolved
	// Failed means the tier hit an error; it is logged and the next tier runs.
	Failed
)

func (s TierStatus) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unresolved"
	}
}

// TierResult is returned by every tier.
type TierResult struct {
	Err        error
	Assignment model.Assignment
	Status     TierStatus
}

func resolved(a model.Assignment) TierResult { return TierResult{Status: Resolved, Assignment: a} }
func unresolved() TierResult                  { return TierResult{Status: Unresolved} }
func failed(err error) TierResult             { return TierResult{Status: Failed, Err: err} }
