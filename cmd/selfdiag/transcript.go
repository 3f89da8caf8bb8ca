package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mrsinham/selfdiag/internal/diagnosis"
	"gopkg.in/yaml.v3"
)

// Transcript is the YAML export of a finished or abandoned session.
type Transcript struct {
	SessionID string              `yaml:"session_id"`
	Phase     string              `yaml:"phase"`
	PatientID int64               `yaml:"patient_id,omitempty"`
	VisitID   int64               `yaml:"visit_id,omitempty"`
	SavedAt   time.Time           `yaml:"saved_at"`
	Messages  []diagnosis.Message `yaml:"messages"`
}

// newTranscript snapshots session.
func newTranscript(session *diagnosis.Session, now time.Time) Transcript {
	refs := session.Refs()
	return Transcript{
		SessionID: session.ID(),
		Phase:     session.Phase().String(),
		PatientID: refs.PatientID,
		VisitID:   refs.VisitID,
		SavedAt:   now.UTC(),
		Messages:  session.Messages(),
	}
}

// SaveTranscript writes t to path as YAML.
func SaveTranscript(t Transcript, path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// LoadTranscript reads a transcript written by SaveTranscript.
func LoadTranscript(path string) (Transcript, error) {
	var t Transcript
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read transcript: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse transcript: %w", err)
	}
	return t, nil
}

// exportTranscript writes the transcript when path is set.
func exportTranscript(session *diagnosis.Session, path string) error {
	if path == "" {
		return nil
	}
	return SaveTranscript(newTranscript(session, time.Now()), path)
}
