package batch

import "fmt"

// Stage names the pipeline step a row failed in.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageMatching   Stage = "matching"
)

// Outcome is the terminal state of one processed row.
//
//	PENDING ──Extract ok──→ treatment? ──yes──→ Match ok ──→ CODED
//	   │                        │                  └─ err ─→ MATCH_FAILED
//	   │                        └─no──→ SKIPPED
//	   └─Extract err─→ EXTRACTION_FAILED
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCoded
	OutcomeSkipped
	OutcomeMatchFailed
	OutcomeExtractionFailed
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "PENDING"
	case OutcomeCoded:
		return "CODED"
	case OutcomeSkipped:
		return "SKIPPED"
	case OutcomeMatchFailed:
		return "MATCH_FAILED"
	case OutcomeExtractionFailed:
		return "EXTRACTION_FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", o)
	}
}

// Failed reports whether a stage failed for the row.
func (o Outcome) Failed() bool {
	return o == OutcomeMatchFailed || o == OutcomeExtractionFailed
}

// Stage returns the failed stage, or "" when the row did not fail.
func (o Outcome) Stage() Stage {
	if !o.Failed() {
		return ""
	}
	if o == OutcomeExtractionFailed {
		return StageExtraction
	}
	return StageMatching
}

// matchStatus is the value carried on coded-row events.
func (o Outcome) matchStatus() string {
	switch o {
	case OutcomeCoded:
		return "matched"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// rowKey is the event key for row index of a run.
func rowKey(runId string, index int) string {
	return fmt.Sprintf("%s-row-%d", runId, index)
}
