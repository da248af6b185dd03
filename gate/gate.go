// Package gate decides what happens to a scored transcription: accept it,
// re-record and try again, or reject it. Deterministic in its inputs; all
// policy lives in the caller-supplied parameters.
package gate

// Decision is the outcome for one transcription attempt.
type Decision struct {
	Accept  bool
	Retry   bool
	Warning string
}

const lowConfidenceWarning = "low confidence result, accepted under floor override"

// Evaluate applies the confidence policy.
//
// confidence >= threshold accepts outright. Below threshold, remaining
// retry budget wins: the caller re-records the same logical request.
// With retries exhausted, the result is still accepted when the
// low-confidence override is enabled and confidence clears the floor —
// always with a warning attached. Anything else is a reject.
func Evaluate(confidence, floor, threshold float64, attemptsSoFar, maxRetries int, allowLowConfidence bool) Decision {
	if confidence >= threshold {
		return Decision{Accept: true}
	}
	if attemptsSoFar < maxRetries {
		return Decision{Retry: true}
	}
	if allowLowConfidence && confidence >= floor {
		return Decision{Accept: true, Warning: lowConfidenceWarning}
	}
	return Decision{}
}
