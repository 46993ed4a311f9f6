package models

import "fmt"

// ValidationError reports an invalid request before any upstream call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RetrievalError reports a failed research retrieval. The pipeline absorbs it
// and continues without research augmentation; it is never surfaced to the
// caller as a request failure.
type RetrievalError struct {
	Stage string // "search", "start", "poll"
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed during %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// GenerationError reports an upstream language-model failure after the retry
// budget is exhausted. The raw detail is logged, never shown to the end user.
type GenerationError struct {
	StatusCode int // 0 when the failure was not an HTTP response
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
