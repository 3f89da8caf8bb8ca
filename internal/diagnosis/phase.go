// Package diagnosis implements the patient self-diagnosis dialogue: a fixed
// question script, the draft record it fills in, and the backend sagas that
// turn the draft into a stored visit with an AI analysis.
package diagnosis

// Phase represents one stage of the self-diagnosis question sequence.
// Phases only move forward and are never revisited within a session.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSymptomsGeneral
	PhaseSymptomsRespiratory
	PhaseSymptomsDigestive
	PhaseSymptomsOther
	PhaseImageUpload
	PhaseAdditional
	PhaseCompleted
)

var phaseNames = map[Phase]string{
	PhaseInit:                "init",
	PhaseSymptomsGeneral:     "symptoms_general",
	PhaseSymptomsRespiratory: "symptoms_respiratory",
	PhaseSymptomsDigestive:   "symptoms_digestive",
	PhaseSymptomsOther:       "symptoms_other",
	PhaseImageUpload:         "image_upload",
	PhaseAdditional:          "additional",
	PhaseCompleted:           "completed",
}

// String returns the snake_case name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Next returns the phase that follows p. Completed is terminal.
func (p Phase) Next() Phase {
	if p >= PhaseCompleted {
		return PhaseCompleted
	}
	return p + 1
}

// IsSymptom reports whether answers in p are accumulated into the clinical
// manifestation as question/answer pairs.
func (p Phase) IsSymptom() bool {
	return p >= PhaseSymptomsGeneral && p <= PhaseSymptomsOther
}

// AcceptsText reports whether SubmitAnswer is allowed in p.
func (p Phase) AcceptsText() bool {
	return p != PhaseImageUpload && p != PhaseCompleted
}

// Cursor is the position of the current question within a phase.
type Cursor struct {
	Phase Phase
	Index int
}
