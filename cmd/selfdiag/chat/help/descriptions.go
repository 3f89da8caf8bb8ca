package help

// HelpText contains information about a conversation phase
type HelpText struct {
	Title       string
	Description string
	Details     string
}

// Texts contains help information keyed by phase name
var Texts = map[string]HelpText{
	"init": {
		Title:       "基本信息",
		Description: "姓名、性别、年龄和主诉。",
		Details: `性别可回答 男 / 女 / 其他，也可输入 male / female
年龄取回答开头的数字，例如 "34岁" 记为 34
主诉请描述目前最不舒服的症状`,
	},
	"symptoms_general": {
		Title:       "全身症状",
		Description: "发热、恶寒、汗出和四肢温度。",
		Details:     "每个回答都会连同问题一起记入临床表现。",
	},
	"symptoms_respiratory": {
		Title:       "呼吸系统",
		Description: "咳嗽、咳痰、痰色和咽痛。",
		Details:     "痰色请尽量说明偏黄还是偏白。",
	},
	"symptoms_digestive": {
		Title:       "消化系统",
		Description: "食欲和大便情况。",
		Details:     "如大便偏干、偏稀或次数异常，请一并说明。",
	},
	"symptoms_other": {
		Title:       "其他",
		Description: "口渴情况和身体疼痛。",
		Details:     "口渴时喜热饮还是喜冷饮对辨证有帮助。",
	},
	"image_upload": {
		Title:       "舌象照片",
		Description: "选择一张清晰的舌头照片。",
		Details: `支持 PNG、JPEG、GIF、WebP、BMP、TIFF 和 DICOM
较大的照片会自动缩小后再上传
上传失败可以重新选择照片重试`,
	},
	"additional": {
		Title:       "补充症状",
		Description: "还有其他不适请在这里补充。",
		Details:     "提交后将保存就诊记录并生成最终分析。",
	},
	"completed": {
		Title:       "问诊完成",
		Description: "您的自诊信息已提交。",
		Details:     "按 n 重新开始一次自诊，按 Enter 或 q 退出。",
	},
}
