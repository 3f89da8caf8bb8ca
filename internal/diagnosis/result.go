package diagnosis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Keys of the AI analysis object.
const (
	resultFinalKey        = "最终结果"
	resultPrescriptionKey = "处方组成"
)

// ExtractResult picks the text to show from an AI analysis object: the
// prescription under the final result, else a top-level prescription, else
// the whole object as indented JSON.
func ExtractResult(result map[string]any) string {
	if final, ok := result[resultFinalKey].(map[string]any); ok {
		if text, ok := textValue(final[resultPrescriptionKey]); ok {
			return text
		}
	}
	if text, ok := textValue(result[resultPrescriptionKey]); ok {
		return text
	}
	return indentJSON(result)
}

// textValue renders v as text. Missing, empty, zero and false values report
// false, so a prescription of 0 or false falls through like an absent one.
func textValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case bool:
		return "true", t
	case float64:
		return fmt.Sprint(t), t != 0 && !math.IsNaN(t)
	case int:
		return fmt.Sprint(t), t != 0
	case map[string]any, []any:
		return indentJSON(t), true
	default:
		return fmt.Sprint(t), true
	}
}

func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
