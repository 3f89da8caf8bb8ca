package diagnosis

import (
	"context"
	"fmt"
	"time"

	"github.com/mrsinham/selfdiag/internal/logger"
	"github.com/mrsinham/selfdiag/internal/metrics"
)

// ImageOutcome is what a successful image submission produced.
type ImageOutcome struct {
	Result map[string]any
}

// FinalOutcome is what a successful finalization produced.
type FinalOutcome struct {
	Result map[string]any
}

// Orchestrator runs the two backend sagas. It reads value snapshots of the
// draft and the refs and never mutates session state; the caller folds the
// returned refs back in. Steps run strictly in order and nothing is rolled
// back when a later step fails.
type Orchestrator struct {
	backend Backend
	now     func() time.Time
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewOrchestrator builds an orchestrator over b. Only WithClock, WithLogger
// and WithMetrics apply.
func NewOrchestrator(b Backend, opts ...Option) *Orchestrator {
	o := applyOptions(opts)
	return newOrchestrator(b, o)
}

func newOrchestrator(b Backend, o options) *Orchestrator {
	return &Orchestrator{
		backend: b,
		now:     o.now,
		log:     o.log,
		metrics: o.metrics,
	}
}

// SubmitImage creates the patient and the visit when the refs lack them,
// then uploads the draft's image. The returned refs include every id created
// before a failure.
func (o *Orchestrator) SubmitImage(ctx context.Context, d Draft, refs RemoteEntityRefs) (RemoteEntityRefs, ImageOutcome, error) {
	start := time.Now()
	log := o.log.WithSaga(string(SagaImageSubmission))

	if d.Image == nil || len(d.Image.Data) == 0 {
		return refs, ImageOutcome{}, ErrMissingImage
	}

	refs, err := o.ensureEntities(ctx, log, SagaImageSubmission, d, refs)
	if err != nil {
		o.finish(SagaImageSubmission, err, start)
		return refs, ImageOutcome{}, err
	}

	result, err := o.backend.UploadTongueImage(ctx, refs.VisitID, *d.Image, UploadDescription)
	if err != nil {
		err = o.fail(log, SagaImageSubmission, StepUploadImage, err)
		o.finish(SagaImageSubmission, err, start)
		return refs, ImageOutcome{}, err
	}
	log.SagaStep(string(StepUploadImage), refs.PatientID, refs.VisitID)

	o.finish(SagaImageSubmission, nil, start)
	return refs, ImageOutcome{Result: result}, nil
}

// Finalize reuses the refs from the image submission, creating whatever is
// missing, then asks the backend for the final analysis.
func (o *Orchestrator) Finalize(ctx context.Context, d Draft, refs RemoteEntityRefs) (RemoteEntityRefs, FinalOutcome, error) {
	start := time.Now()
	log := o.log.WithSaga(string(SagaFinalization))

	refs, err := o.ensureEntities(ctx, log, SagaFinalization, d, refs)
	if err != nil {
		o.finish(SagaFinalization, err, start)
		return refs, FinalOutcome{}, err
	}

	result, err := o.backend.CompleteSelfDiagnosis(ctx, refs.VisitID)
	if err != nil {
		err = o.fail(log, SagaFinalization, StepComplete, err)
		o.finish(SagaFinalization, err, start)
		return refs, FinalOutcome{}, err
	}
	log.SagaStep(string(StepComplete), refs.PatientID, refs.VisitID)

	o.finish(SagaFinalization, nil, start)
	return refs, FinalOutcome{Result: result}, nil
}

// ensureEntities runs the create-patient and create-visit steps for the ids
// missing from refs.
func (o *Orchestrator) ensureEntities(ctx context.Context, log *logger.Logger, saga SagaKind, d Draft, refs RemoteEntityRefs) (RemoteEntityRefs, error) {
	if !refs.HasPatient() {
		patient := d.Patient
		patient.IDCard = ""
		id, err := o.backend.CreatePatient(ctx, patient)
		if err != nil {
			return refs, o.fail(log, saga, StepCreatePatient, err)
		}
		refs.PatientID = id
		log.SagaStep(string(StepCreatePatient), refs.PatientID, refs.VisitID)
	}

	if !refs.HasVisit() {
		now := o.now()
		id, err := o.backend.CreateVisit(ctx, VisitRequest{
			PatientID:           refs.PatientID,
			Visit:               d.Visit,
			VisitDate:           now,
			MedicalRecordNumber: MedicalRecordNumber(now),
		})
		if err != nil {
			return refs, o.fail(log, saga, StepCreateVisit, err)
		}
		refs.VisitID = id
		log.SagaStep(string(StepCreateVisit), refs.PatientID, refs.VisitID)
	}

	return refs, nil
}

func (o *Orchestrator) fail(log *logger.Logger, saga SagaKind, step Step, err error) error {
	log.SagaError(string(step), err)
	return &SagaError{Saga: saga, Step: step, Err: err}
}

func (o *Orchestrator) finish(saga SagaKind, err error, start time.Time) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		if _, ok := ServerMessage(err); ok {
			outcome = "server_error"
		}
	}
	o.metrics.RecordSaga(string(saga), outcome, time.Since(start))
}

// MedicalRecordNumber returns the record number of a self-diagnosis visit
// created at t.
func MedicalRecordNumber(t time.Time) string {
	return fmt.Sprintf("SD-%d", t.UnixMilli())
}
