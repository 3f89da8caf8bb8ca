package diagnosis

import "fmt"

// reducer folds one answer into the draft. It never touches the transport.
type reducer func(d Draft, index int, answer string) Draft

// reducers maps every text-accepting phase to its reducer.
var reducers = map[Phase]reducer{
	PhaseInit:                reduceInit,
	PhaseSymptomsGeneral:     reduceSymptom(PhaseSymptomsGeneral),
	PhaseSymptomsRespiratory: reduceSymptom(PhaseSymptomsRespiratory),
	PhaseSymptomsDigestive:   reduceSymptom(PhaseSymptomsDigestive),
	PhaseSymptomsOther:       reduceSymptom(PhaseSymptomsOther),
	PhaseAdditional:          reduceAdditional,
}

// Indices of the Init questions.
const (
	initName = iota
	initGender
	initAge
	initChiefComplaint
)

func reduceInit(d Draft, index int, answer string) Draft {
	switch index {
	case initName:
		d.Patient.Name = answer
	case initGender:
		d.Patient.Gender = ParseGender(answer)
	case initAge:
		// Unparseable ages leave the field as it was.
		if age, ok := ParseAge(answer); ok {
			d.Patient.Age = age
		}
	case initChiefComplaint:
		d.Visit.ChiefComplaint = answer
	}
	return d
}

func reduceSymptom(p Phase) reducer {
	return func(d Draft, index int, answer string) Draft {
		d.Visit.appendManifestation(fmt.Sprintf("%s %s", question(p, index), answer))
		return d
	}
}

func reduceAdditional(d Draft, _ int, answer string) Draft {
	d.Visit.appendManifestation("其他症状：" + answer)
	return d
}

// advance applies the answer at cursor c and returns the new draft and
// cursor. entered is true when the answer exhausted the phase and the cursor
// moved to the first position of the next phase.
func advance(c Cursor, d Draft, answer string) (Draft, Cursor, bool) {
	r, ok := reducers[c.Phase]
	if !ok {
		return d, c, false
	}
	d = r(d, c.Index, answer)

	if next := c.Index + 1; next < QuestionCount(c.Phase) {
		return d, Cursor{Phase: c.Phase, Index: next}, false
	}
	return d, Cursor{Phase: c.Phase.Next()}, true
}
