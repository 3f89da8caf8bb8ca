package diagnosis

import (
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// ParseGender maps a free-text gender answer to a Gender by keyword.
// Chinese keywords win over English ones; "female" is checked before "male"
// because it contains it. Anything unrecognised is GenderOther.
func ParseGender(answer string) Gender {
	text := strings.ToLower(strings.TrimSpace(answer))
	switch {
	case strings.Contains(text, "男"):
		return GenderMale
	case strings.Contains(text, "女"):
		return GenderFemale
	case strings.Contains(text, "female"):
		return GenderFemale
	case strings.Contains(text, "male"):
		return GenderMale
	default:
		return GenderOther
	}
}

// ParseAge reads the leading integer of answer, so "34岁" gives 34.
// Full-width digits are folded to ASCII first. ok is false when no positive
// integer can be read.
func ParseAge(answer string) (age int, ok bool) {
	text := strings.TrimSpace(width.Narrow.String(answer))

	end := 0
	if end < len(text) && (text[end] == '+' || text[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}

	n, err := strconv.Atoi(text[:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
