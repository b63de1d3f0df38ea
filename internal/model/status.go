package model

import "fmt"

const (
	PhaseCreated    = "created"
	PhaseClassified = "classified"
	PhaseResolved   = "resolved"
	PhaseInvoked    = "invoked"
	PhaseFailed     = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	PhaseCreated: {
		PhaseClassified: true,
		PhaseFailed:     true,
	},
	PhaseClassified: {
		PhaseResolved: true,
		PhaseFailed:   true,
	},
	PhaseResolved: {
		PhaseInvoked: true,
		PhaseFailed:  true,
	},
	PhaseInvoked: {
		PhaseFailed: true, // engine ran but produced nothing usable
	},
	PhaseFailed: {
		PhaseFailed: true,
	},
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionRecord(rec *Record, to string) error {
	from := rec.Phase
	if from == "" {
		from = PhaseCreated
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid record phase transition: %q -> %q (line=%d url=%s)", from, to, rec.Line, rec.URL)
	}
	rec.Phase = to
	return nil
}
