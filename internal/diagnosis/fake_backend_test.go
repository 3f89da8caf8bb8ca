package diagnosis

import (
	"context"
	"errors"
	"sync"
)

// serverError mimics a backend error that carries a message.
type serverError struct{ msg string }

func (e *serverError) Error() string         { return "server: " + e.msg }
func (e *serverError) ServerMessage() string { return e.msg }

var errNetwork = errors.New("connection refused")

// fakeBackend records calls and returns canned ids and results. A non-nil
// xxxErr makes the matching call fail. release, when set, blocks uploads
// until it is closed.
type fakeBackend struct {
	mu sync.Mutex

	patients []PatientInfo
	visits   []VisitRequest
	uploads  []int64
	finals   []int64
	images   []PendingImage

	patientErr  error
	visitErr    error
	uploadErr   error
	completeErr error

	uploadResult   map[string]any
	completeResult map[string]any

	uploadStarted chan struct{}
	release       chan struct{}
}

func (f *fakeBackend) CreatePatient(_ context.Context, p PatientInfo) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patientErr != nil {
		return 0, f.patientErr
	}
	f.patients = append(f.patients, p)
	return int64(100 + len(f.patients)), nil
}

func (f *fakeBackend) CreateVisit(_ context.Context, req VisitRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visitErr != nil {
		return 0, f.visitErr
	}
	f.visits = append(f.visits, req)
	return int64(200 + len(f.visits)), nil
}

func (f *fakeBackend) UploadTongueImage(ctx context.Context, visitID int64, img PendingImage, _ string) (map[string]any, error) {
	if f.uploadStarted != nil {
		f.uploadStarted <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, visitID)
	f.images = append(f.images, img)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadResult, nil
}

func (f *fakeBackend) CompleteSelfDiagnosis(_ context.Context, visitID int64) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finals = append(f.finals, visitID)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.completeResult, nil
}

func (f *fakeBackend) counts() (patients, visits, uploads, finals int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patients), len(f.visits), len(f.uploads), len(f.finals)
}
