package domain

import "strings"

// DefaultFragment is emitted whenever no usable diagram could be recovered.
const DefaultFragment = "flowchart TD\n    A[start] --> B[end]"

// IsDefault reports whether the fragment is, or embeds, the default fragment.
func IsDefault(fragment string) bool {
	return strings.Contains(fragment, DefaultFragment)
}

// FailureReason classifies why an image produced no usable diagram.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonInvalidInput     FailureReason = "invalid_input"
	ReasonModerated        FailureReason = "moderated"
	ReasonMalformed        FailureReason = "malformed_response"
	ReasonRetriesExhausted FailureReason = "retries_exhausted"
	ReasonNoDiagram        FailureReason = "no_diagram"
)

// BatchResult tallies the outcome of one batch run.
type BatchResult struct {
	RunID     string
	Attempted int
	Succeeded int
	Failed    int
	Moderated int
}

// SuccessRate returns the percentage of attempted images that succeeded.
func (r BatchResult) SuccessRate() float64 {
	if r.Attempted == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Attempted) * 100
}

// ConversionRecord is the persisted outcome of converting a single image.
type ConversionRecord struct {
	RunID     string
	Image     string
	Stem      string
	Status    string
	Reason    FailureReason
	Fragment  string
	Model     string
	CreatedAt string
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)
