package diagnosis

import (
	"strings"
	"testing"
)

func TestExtractResult(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
		want   string
	}{
		{
			name: "nested prescription wins",
			result: map[string]any{
				"最终结果": map[string]any{"处方组成": "桂枝汤"},
				"处方组成": "麻黄汤",
			},
			want: "桂枝汤",
		},
		{
			name:   "top-level prescription",
			result: map[string]any{"处方组成": "麻黄汤"},
			want:   "麻黄汤",
		},
		{
			name: "empty nested falls through",
			result: map[string]any{
				"最终结果": map[string]any{"处方组成": ""},
				"处方组成": "小柴胡汤",
			},
			want: "小柴胡汤",
		},
		{
			name: "zero nested falls through",
			result: map[string]any{
				"最终结果": map[string]any{"处方组成": float64(0)},
				"处方组成": "小柴胡汤",
			},
			want: "小柴胡汤",
		},
		{
			name: "false nested falls through",
			result: map[string]any{
				"最终结果": map[string]any{"处方组成": false},
				"处方组成": "麻黄汤",
			},
			want: "麻黄汤",
		},
		{
			name:   "zero top-level gives whole object",
			result: map[string]any{"处方组成": 0},
			want:   "{\n  \"处方组成\": 0\n}",
		},
		{
			name:   "false top-level gives whole object",
			result: map[string]any{"处方组成": false},
			want:   "{\n  \"处方组成\": false\n}",
		},
		{
			name:   "non-zero number is shown",
			result: map[string]any{"处方组成": float64(3)},
			want:   "3",
		},
		{
			name:   "true is shown",
			result: map[string]any{"处方组成": true},
			want:   "true",
		},
		{
			name:   "whole object",
			result: map[string]any{"证型": "风寒"},
			want:   "{\n  \"证型\": \"风寒\"\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractResult(tt.result); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExtractResultStructuredPrescription(t *testing.T) {
	got := ExtractResult(map[string]any{
		"处方组成": []any{"桂枝 9g", "白芍 9g"},
	})
	if !strings.Contains(got, "桂枝 9g") || !strings.HasPrefix(got, "[") {
		t.Errorf("Expected JSON array text, got %q", got)
	}
}
