package diagnosis

// Prompts shown outside the question lists.
const (
	ImageUploadInstruction = "请您伸出舌头，拍一张清晰的照片发过来。"
	AnalyzingNotice        = "问诊已完成，正在为您分析诊断结果..."
)

// script holds the ordered questions of every phase that asks questions.
// ImageUpload and Completed have none.
var script = map[Phase][]string{
	PhaseInit: {
		"您好，我是中医智能问诊助手，现在开始为您进行自诊。请先告诉我您的姓名。",
		"请问您的性别？（男/女/其他）",
		"请问您多大年纪？",
		"请问您目前最不舒服的症状是什么？",
	},
	PhaseSymptomsGeneral: {
		"您有没有发烧？",
		"怕冷吗？",
		"出汗吗？",
		"手脚凉不凉？",
	},
	PhaseSymptomsRespiratory: {
		"有没有咳嗽？",
		"有痰吗？",
		"痰是什么颜色的？（偏黄还是偏白）",
		"嗓子疼不疼？",
	},
	PhaseSymptomsDigestive: {
		"胃口怎么样？",
		"大便正常吗？",
	},
	PhaseSymptomsOther: {
		"口渴吗？想喝热水还是凉水？",
		"浑身疼不疼？",
	},
	PhaseAdditional: {
		"您还有其他症状吗？",
	},
}

// Input hints for the Init questions, by index.
var initPlaceholders = []string{
	"请输入您的姓名",
	"请输入性别（男/女/其他）",
	"请输入年龄",
	"请输入主诉症状",
}

// PromptsFor returns the ordered questions of phase p. The returned slice is
// a copy; phases without questions return nil.
func PromptsFor(p Phase) []string {
	questions := script[p]
	if len(questions) == 0 {
		return nil
	}
	out := make([]string, len(questions))
	copy(out, questions)
	return out
}

// QuestionCount returns len(PromptsFor(p)) without copying.
func QuestionCount(p Phase) int {
	return len(script[p])
}

// question returns the question at index i of phase p, or "" if out of range.
func question(p Phase, i int) string {
	questions := script[p]
	if i < 0 || i >= len(questions) {
		return ""
	}
	return questions[i]
}

// openingPrompt is the system message emitted when p becomes active.
func openingPrompt(p Phase) string {
	if p == PhaseImageUpload {
		return ImageUploadInstruction
	}
	return question(p, 0)
}

// Placeholder returns the input hint for the question at (p, index).
func Placeholder(p Phase, index int) string {
	if p == PhaseInit && index >= 0 && index < len(initPlaceholders) {
		return initPlaceholders[index]
	}
	return "请输入回答..."
}
