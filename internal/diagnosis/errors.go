package diagnosis

import (
	"errors"
	"fmt"
)

// Input errors. They are returned before any state change or network call.
var (
	ErrEmptyAnswer  = errors.New("answer is empty")
	ErrMissingImage = errors.New("no image selected")
	ErrWrongPhase   = errors.New("operation not allowed in current phase")
	ErrSagaInFlight = errors.New("a submission is already in progress")
)

// SagaKind names one of the two backend sagas.
type SagaKind string

const (
	SagaImageSubmission SagaKind = "image_submission"
	SagaFinalization    SagaKind = "finalization"
)

// Step names a single backend call inside a saga.
type Step string

const (
	StepCreatePatient Step = "create_patient"
	StepCreateVisit   Step = "create_visit"
	StepUploadImage   Step = "upload_image"
	StepComplete      Step = "complete_self_diagnosis"
)

// SagaError reports the step at which a saga stopped.
type SagaError struct {
	Saga SagaKind
	Step Step
	Err  error
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("%s saga failed at %s: %v", e.Saga, e.Step, e.Err)
}

func (e *SagaError) Unwrap() error {
	return e.Err
}

// ServerReported is implemented by errors that carry a message produced by
// the backend itself, as opposed to transport failures.
type ServerReported interface {
	error
	ServerMessage() string
}

// ServerMessage returns the backend-provided message wrapped in err, if any.
func ServerMessage(err error) (string, bool) {
	var sr ServerReported
	if errors.As(err, &sr) && sr.ServerMessage() != "" {
		return sr.ServerMessage(), true
	}
	return "", false
}

// IsServerReported reports whether err carries a backend-provided message.
func IsServerReported(err error) bool {
	_, ok := ServerMessage(err)
	return ok
}
