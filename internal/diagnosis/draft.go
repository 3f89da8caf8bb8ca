package diagnosis

import "strings"

// Gender of the patient as understood from the gender answer.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
	GenderOther
)

// String returns the lower-case name of the gender.
func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	case GenderOther:
		return "other"
	default:
		return "unknown"
	}
}

// Code returns the backend's numeric gender code (0 female, 1 male,
// 2 other). ok is false for GenderUnknown, which is sent as null.
func (g Gender) Code() (code int, ok bool) {
	switch g {
	case GenderFemale:
		return 0, true
	case GenderMale:
		return 1, true
	case GenderOther:
		return 2, true
	default:
		return 0, false
	}
}

// VisitType distinguishes a first visit from a follow-up.
type VisitType int

const (
	VisitTypeInitial  VisitType = 0
	VisitTypeFollowUp VisitType = 1
)

// ImageTypeTongue is the only diagnostic image type collected by the dialogue.
const ImageTypeTongue = "tongue"

// manifestationSeparator joins accumulated symptom entries.
const manifestationSeparator = "；"

// PatientInfo is the patient part of the draft.
type PatientInfo struct {
	Name   string
	Gender Gender
	Age    int // 0 means unset
	IDCard string
	Phone  string
}

// VisitInfo is the visit part of the draft.
type VisitInfo struct {
	ChiefComplaint         string
	Symptoms               string
	ClinicalManifestation  string
	TongueDiagnosis        string
	PulseDiagnosis         string
	TCMDiagnosis           string
	WesternDiagnosis       string
	PatternDifferentiation string
	TreatmentPlan          string
	VisitType              VisitType
}

// appendManifestation adds entry to the clinical manifestation.
func (v *VisitInfo) appendManifestation(entry string) {
	if v.ClinicalManifestation == "" {
		v.ClinicalManifestation = entry
		return
	}
	v.ClinicalManifestation = strings.Join([]string{v.ClinicalManifestation, entry}, manifestationSeparator)
}

// PendingImage is an image waiting to be uploaded for analysis.
type PendingImage struct {
	Data        []byte
	Filename    string
	ContentType string
	Type        string
}

// Draft is the record under construction during a session.
type Draft struct {
	Patient PatientInfo
	Visit   VisitInfo
	Image   *PendingImage
}

// newDraft returns an empty draft, seeded with the contact phone if any.
func newDraft(phone string) Draft {
	return Draft{
		Patient: PatientInfo{Phone: phone},
		Visit:   VisitInfo{VisitType: VisitTypeInitial},
	}
}

// clone returns a deep copy so sagas can read it without sharing memory
// with the session.
func (d Draft) clone() Draft {
	out := d
	if d.Image != nil {
		img := *d.Image
		img.Data = append([]byte(nil), d.Image.Data...)
		out.Image = &img
	}
	return out
}

// RemoteEntityRefs holds the ids the backend assigned during this session.
// A zero id means the entity has not been created yet.
type RemoteEntityRefs struct {
	PatientID int64
	VisitID   int64
}

// HasPatient reports whether a patient was created in this session.
func (r RemoteEntityRefs) HasPatient() bool { return r.PatientID != 0 }

// HasVisit reports whether a visit was created in this session.
func (r RemoteEntityRefs) HasVisit() bool { return r.VisitID != 0 }
