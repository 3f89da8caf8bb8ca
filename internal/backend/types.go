package backend

import (
	"time"

	"github.com/mrsinham/selfdiag/internal/diagnosis"
)

// API paths of the diagnosis backend. Paths ending in a slash take the
// visit id as their last segment.
const (
	PathPatients          = "/api/patients"
	PathVisits            = "/api/visits"
	PathUploadTongueImage = "/api/self-diagnosis/upload-tongue-image/"
	PathCompleteDiagnosis = "/api/self-diagnosis/complete-self-diagnosis/"
	PathAnalysisResult    = "/api/self-diagnosis/analysis-result/"
)

// Analysis statuses reported by the backend.
const (
	AnalysisStatusSuccess   = "success"
	AnalysisStatusPending   = "pending"
	AnalysisStatusSubmitted = "submitted"
)

const visitDateLayout = "2006-01-02T15:04:05.000Z"

// PatientPayload is the JSON body of a patient creation.
type PatientPayload struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name"`
	Gender *int   `json:"gender"`
	Age    *int   `json:"age"`
	IDCard string `json:"idCard"`
	Phone  string `json:"phone"`
}

// EntityRef references an entity by id, as in {"patient": {"id": 1}}.
type EntityRef struct {
	ID int64 `json:"id"`
}

// VisitPayload is the JSON body of a visit creation.
type VisitPayload struct {
	ID                                int64      `json:"id,omitempty"`
	Patient                           *EntityRef `json:"patient"`
	VisitType                         int        `json:"visitType"`
	MedicalRecordNumber               string     `json:"medicalRecordNumber,omitempty"`
	ChiefComplaint                    string     `json:"chiefComplaint"`
	Symptoms                          string     `json:"symptoms"`
	InitialVisitClinicalManifestation string     `json:"initialVisitClinicalManifestation"`
	TongueDiagnosis                   string     `json:"tongueDiagnosis"`
	PulseDiagnosis                    string     `json:"pulseDiagnosis"`
	TCMDiagnosis                      string     `json:"tcmDiagnosis"`
	WesternDiagnosis                  string     `json:"westernDiagnosis"`
	PatternDifferentiation            string     `json:"patternDifferentiation"`
	TreatmentPlan                     string     `json:"treatmentPlan"`
	VisitDate                         string     `json:"visitDate"`
}

// UploadResponse is returned by the tongue image upload.
type UploadResponse struct {
	Status           string         `json:"status"`
	Message          string         `json:"message"`
	ImageID          string         `json:"imageId"`
	AIAnalysisResult map[string]any `json:"aiAnalysisResult"`
}

// CompleteResponse is returned by complete-self-diagnosis.
type CompleteResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	VisitID int64          `json:"visitId"`
	Result  map[string]any `json:"result"`
}

// AnalysisResult is the stored analysis of a visit.
type AnalysisResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
}

// Pending reports whether the analysis is not available yet.
func (r AnalysisResult) Pending() bool {
	return r.Status == AnalysisStatusPending || r.Result == nil
}

// ErrorResponse is the body of a non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewPatientPayload maps a draft patient to its wire form. Unknown gender
// and unset age are sent as null.
func NewPatientPayload(p diagnosis.PatientInfo) PatientPayload {
	payload := PatientPayload{
		Name:   p.Name,
		IDCard: p.IDCard,
		Phone:  p.Phone,
	}
	if code, ok := p.Gender.Code(); ok {
		payload.Gender = &code
	}
	if p.Age > 0 {
		age := p.Age
		payload.Age = &age
	}
	return payload
}

// NewVisitPayload maps a visit request to its wire form.
func NewVisitPayload(req diagnosis.VisitRequest) VisitPayload {
	v := req.Visit
	return VisitPayload{
		Patient:                           &EntityRef{ID: req.PatientID},
		VisitType:                         int(v.VisitType),
		MedicalRecordNumber:               req.MedicalRecordNumber,
		ChiefComplaint:                    v.ChiefComplaint,
		Symptoms:                          v.Symptoms,
		InitialVisitClinicalManifestation: v.ClinicalManifestation,
		TongueDiagnosis:                   v.TongueDiagnosis,
		PulseDiagnosis:                    v.PulseDiagnosis,
		TCMDiagnosis:                      v.TCMDiagnosis,
		WesternDiagnosis:                  v.WesternDiagnosis,
		PatternDifferentiation:            v.PatternDifferentiation,
		TreatmentPlan:                     v.TreatmentPlan,
		VisitDate:                         FormatVisitDate(req.VisitDate),
	}
}

// FormatVisitDate renders t as UTC ISO-8601 with milliseconds.
func FormatVisitDate(t time.Time) string {
	return t.UTC().Format(visitDateLayout)
}
