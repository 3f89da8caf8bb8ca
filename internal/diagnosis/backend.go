package diagnosis

import (
	"context"
	"time"
)

// UploadDescription accompanies every tongue image sent by the dialogue.
const UploadDescription = "自诊舌象图片"

// VisitRequest is the payload of a visit creation.
type VisitRequest struct {
	PatientID           int64
	Visit               VisitInfo
	VisitDate           time.Time
	MedicalRecordNumber string
}

// Backend is the remote collaborator the sagas talk to. Result maps are the
// AI analysis objects returned by the server; nil means the response carried
// none.
type Backend interface {
	CreatePatient(ctx context.Context, patient PatientInfo) (int64, error)
	CreateVisit(ctx context.Context, req VisitRequest) (int64, error)
	UploadTongueImage(ctx context.Context, visitID int64, image PendingImage, description string) (map[string]any, error)
	CompleteSelfDiagnosis(ctx context.Context, visitID int64) (map[string]any, error)
}
