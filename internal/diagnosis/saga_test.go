package diagnosis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mrsinham/selfdiag/internal/metrics"
)

func testDraft() Draft {
	d := newDraft("13800138000")
	d.Patient.Name = "王五"
	d.Patient.Gender = GenderOther
	d.Patient.IDCard = "110101199001011234"
	d.Visit.ChiefComplaint = "乏力"
	d.Image = tongueImage()
	return d
}

func TestOrchestratorSubmitImageCreatesEntities(t *testing.T) {
	b := &fakeBackend{uploadResult: map[string]any{"处方组成": "四君子汤"}}
	o := NewOrchestrator(b, WithClock(func() time.Time { return fixedNow }))

	refs, outcome, err := o.SubmitImage(context.Background(), testDraft(), RemoteEntityRefs{})
	if err != nil {
		t.Fatalf("SubmitImage failed: %v", err)
	}
	if refs != (RemoteEntityRefs{PatientID: 101, VisitID: 201}) {
		t.Errorf("Expected refs 101/201, got %+v", refs)
	}
	if outcome.Result["处方组成"] != "四君子汤" {
		t.Errorf("Expected upload result, got %+v", outcome.Result)
	}

	if b.patients[0].IDCard != "" {
		t.Errorf("Expected id card forced empty, got %q", b.patients[0].IDCard)
	}
	if b.patients[0].Phone != "13800138000" {
		t.Errorf("Expected phone forwarded, got %q", b.patients[0].Phone)
	}
	visit := b.visits[0]
	if visit.PatientID != 101 {
		t.Errorf("Expected visit bound to patient 101, got %d", visit.PatientID)
	}
	if !visit.VisitDate.Equal(fixedNow) {
		t.Errorf("Expected visit date %v, got %v", fixedNow, visit.VisitDate)
	}
	if want := "SD-1709281800000"; visit.MedicalRecordNumber != want {
		t.Errorf("Expected record number %s, got %s", want, visit.MedicalRecordNumber)
	}
	if visit.Visit.VisitType != VisitTypeInitial {
		t.Errorf("Expected initial visit, got %d", visit.Visit.VisitType)
	}
}

func TestOrchestratorReusesRefs(t *testing.T) {
	b := &fakeBackend{}
	o := NewOrchestrator(b)
	refs := RemoteEntityRefs{PatientID: 7, VisitID: 9}

	got, _, err := o.SubmitImage(context.Background(), testDraft(), refs)
	if err != nil {
		t.Fatalf("SubmitImage failed: %v", err)
	}
	got, _, err = o.Finalize(context.Background(), testDraft(), got)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	patients, visits, uploads, finals := b.counts()
	if patients != 0 || visits != 0 {
		t.Errorf("Expected no creation, got %d patients and %d visits", patients, visits)
	}
	if uploads != 1 || finals != 1 || b.uploads[0] != 9 || b.finals[0] != 9 {
		t.Errorf("Expected upload and finalize on visit 9, got %v / %v", b.uploads, b.finals)
	}
	if got != refs {
		t.Errorf("Expected refs unchanged, got %+v", got)
	}
}

func TestOrchestratorStopsAtFailedStep(t *testing.T) {
	b := &fakeBackend{visitErr: errNetwork}
	o := NewOrchestrator(b)

	refs, _, err := o.SubmitImage(context.Background(), testDraft(), RemoteEntityRefs{})

	var se *SagaError
	if !errors.As(err, &se) {
		t.Fatalf("Expected SagaError, got %v", err)
	}
	if se.Saga != SagaImageSubmission || se.Step != StepCreateVisit {
		t.Errorf("Expected image_submission/create_visit, got %s/%s", se.Saga, se.Step)
	}
	if !errors.Is(err, errNetwork) {
		t.Errorf("Expected wrapped network error, got %v", err)
	}
	if refs.PatientID != 101 || refs.HasVisit() {
		t.Errorf("Expected patient kept and no visit, got %+v", refs)
	}
	if _, _, uploads, _ := b.counts(); uploads != 0 {
		t.Errorf("Expected no upload after failure, got %d", uploads)
	}
	if IsServerReported(err) {
		t.Error("Expected transport failure not to be server reported")
	}
}

func TestOrchestratorRequiresImage(t *testing.T) {
	o := NewOrchestrator(&fakeBackend{})
	d := testDraft()
	d.Image = nil

	if _, _, err := o.SubmitImage(context.Background(), d, RemoteEntityRefs{}); !errors.Is(err, ErrMissingImage) {
		t.Errorf("Expected ErrMissingImage, got %v", err)
	}
}

func TestFinalizeCreatesMissingEntities(t *testing.T) {
	b := &fakeBackend{completeResult: map[string]any{"状态": "ok"}}
	o := NewOrchestrator(b)

	refs, outcome, err := o.Finalize(context.Background(), testDraft(), RemoteEntityRefs{})
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !refs.HasPatient() || !refs.HasVisit() {
		t.Errorf("Expected both entities created, got %+v", refs)
	}
	if outcome.Result["状态"] != "ok" {
		t.Errorf("Expected result passed through, got %+v", outcome.Result)
	}
}

func TestFinalizationMessages(t *testing.T) {
	s := NewSession(&fakeBackend{})

	s.mu.Lock()
	out := s.appendFinalization(FinalOutcome{}, &SagaError{Saga: SagaFinalization, Step: StepCreatePatient, Err: errNetwork})
	s.mu.Unlock()
	if len(out) != 1 || out[0].Text != msgSaveFailed {
		t.Errorf("Expected save failure message, got %+v", out)
	}

	s.mu.Lock()
	out = s.appendFinalization(FinalOutcome{}, &SagaError{Saga: SagaFinalization, Step: StepComplete, Err: errNetwork})
	s.mu.Unlock()
	if len(out) != 1 || out[0].Text != msgAnalysisFailed {
		t.Errorf("Expected analysis failure message, got %+v", out)
	}
}

func TestServerMessage(t *testing.T) {
	err := &SagaError{Saga: SagaImageSubmission, Step: StepUploadImage, Err: &serverError{msg: "图片格式错误"}}
	msg, ok := ServerMessage(err)
	if !ok || msg != "图片格式错误" {
		t.Errorf("Expected server message, got %q (%v)", msg, ok)
	}
	if _, ok := ServerMessage(&serverError{}); ok {
		t.Error("Expected empty server message to count as transport failure")
	}
	if got := imageFailureText(&serverError{}); got != msgImageFailedGeneric {
		t.Errorf("Expected generic text, got %q", got)
	}
}

func TestOrchestratorRecordsMetrics(t *testing.T) {
	m := metrics.New()
	b := &fakeBackend{uploadErr: &serverError{msg: "bad"}}
	o := NewOrchestrator(b, WithMetrics(m))

	_, _, _ = o.SubmitImage(context.Background(), testDraft(), RemoteEntityRefs{})
	b.uploadErr = nil
	_, _, _ = o.SubmitImage(context.Background(), testDraft(), RemoteEntityRefs{PatientID: 1, VisitID: 2})

	count, err := testutil.GatherAndCount(m.Registry(), "selfdiag_saga_outcomes_total")
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 outcome series (server_error and success), got %d", count)
	}
}
