package repository

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultTrackingRules 是 Init 时写入仓库骨架的大文件追踪规则
// 语法与 gitignore 一致：匹配到的文件走分块大文件传输路径
// 二进制类文件默认全部追踪；小体积文本默认不追踪
var DefaultTrackingRules = []string{
	// --- 二进制与模型权重 ---
	"*.bin",
	"*.pt",
	"*.onnx",
	"*.safetensors",
	"*.parquet",

	// --- 压缩包 ---
	"*.zip",
	"*.tar",
	"*.gz",
	"*.7z",

	// --- 音视频与图像 ---
	"*.wav",
	"*.mp3",
	"*.flac",
	"*.mp4",
	"*.avi",
	"*.mkv",
	"*.tiff",
	"*.png",
	"*.jpg",
	"*.jpeg",
}

// Tracker 判断一个文件是否应该走大文件版本化路径
type Tracker struct {
	matcher *gitignore.GitIgnore
}

// NewTracker 编译追踪规则
// 规则来自 Backend.TrackingRules，即 Init 时落盘的那份
func NewTracker(rules []string) *Tracker {
	return &Tracker{matcher: gitignore.CompileIgnoreLines(rules...)}
}

// IsTracked 匹配到规则 = 需要追踪
func (t *Tracker) IsTracked(filename string) bool {
	if t == nil || t.matcher == nil {
		return false
	}
	return t.matcher.MatchesPath(filename)
}
