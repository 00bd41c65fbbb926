package services

import (
	"fmt"

	"github.com/google/uuid"
)

// SourceFetchError is retryable. The orchestrator absorbs it into per-source
// retry accounting; it never fails the whole job.
type SourceFetchError struct {
	SourceID uuid.UUID
	Attempts int
	Err      error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch source %s (attempts=%d): %v", e.SourceID, e.Attempts, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ExtractionError is a per-source failure. The source counts as attempted and
// contributes no claims.
type ExtractionError struct {
	SourceID uuid.UUID
	Reason   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract source %s: %s", e.SourceID, e.Reason)
}

// CompilationError fails the ingestion job: a persona without a usable bio set
// is not a valid terminal state.
type CompilationError struct {
	TwinID uuid.UUID
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compile persona for twin %s: %v", e.TwinID, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }
