package pipeline

import "fmt"

// Kind classifies a submission outcome.
type Kind string

const (
	// ValidationFailure means the request was malformed or inconsistent.
	ValidationFailure Kind = "validation_failure"
	// DuplicateIdentifier means every generated order number collided.
	DuplicateIdentifier Kind = "duplicate_identifier"
	// TransientStorageError means storage was unavailable; the caller may retry.
	TransientStorageError Kind = "transient_storage_error"
	// RenderingError is reported after commit when the confirmation could not be built.
	RenderingError Kind = "rendering_error"
	// DeliveryFailure is reported after commit when the transport could not send.
	DeliveryFailure Kind = "delivery_failure"
)

// Stage is a step of the submission state machine.
type Stage string

const (
	StageValidating       Stage = "validating"
	StageNumberGeneration Stage = "number_generation"
	StagePersisting       Stage = "persisting"
	StageRendering        Stage = "rendering"
	StageDelivering       Stage = "delivering"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
)

// SubmissionError is returned by Submit for anything that happens at or before commit.
type SubmissionError struct {
	Kind   Kind
	Stage  Stage
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func fail(kind Kind, stage Stage, reason string, err error) *SubmissionError {
	return &SubmissionError{Kind: kind, Stage: stage, Reason: reason, Err: err}
}
