package blob

import (
	"path/filepath"
	"strings"
)

// Bucket 文件类型桶：storage key 的第四段
type Bucket string

const (
	BucketText    Bucket = "text"
	BucketAudio   Bucket = "audio"
	BucketImage   Bucket = "image"
	BucketArchive Bucket = "archive"
	BucketVideo   Bucket = "video"
	BucketBinary  Bucket = "binary"
	BucketOther   Bucket = "other"
)

// Classification 分类结果：落在哪个桶，以及是否走大文件追踪路径
type Classification struct {
	Bucket  Bucket
	Tracked bool
}

// extTable 是扩展名到类型桶的静态映射
// 规则在编译期就是封闭的：查表，不做任何运行时的模式推断
// 二进制类 (模型权重/压缩包/音视频) 一律追踪，小文本默认不追踪
var extTable = map[string]Classification{
	// 文本 / 表格
	".txt":  {BucketText, false},
	".md":   {BucketText, false},
	".csv":  {BucketText, false},
	".tsv":  {BucketText, false},
	".json": {BucketText, false},
	".yaml": {BucketText, false},
	".yml":  {BucketText, false},
	".xml":  {BucketText, false},

	// 音频
	".wav":  {BucketAudio, true},
	".mp3":  {BucketAudio, true},
	".flac": {BucketAudio, true},
	".ogg":  {BucketAudio, true},

	// 图片
	".png":  {BucketImage, true},
	".jpg":  {BucketImage, true},
	".jpeg": {BucketImage, true},
	".gif":  {BucketImage, true},
	".bmp":  {BucketImage, true},
	".tiff": {BucketImage, true},

	// 压缩包
	".zip": {BucketArchive, true},
	".tar": {BucketArchive, true},
	".gz":  {BucketArchive, true},
	".rar": {BucketArchive, true},
	".7z":  {BucketArchive, true},

	// 视频
	".mp4": {BucketVideo, true},
	".avi": {BucketVideo, true},
	".mkv": {BucketVideo, true},
	".mov": {BucketVideo, true},

	// 二进制 / 模型权重
	".bin":         {BucketBinary, true},
	".pt":          {BucketBinary, true},
	".pth":         {BucketBinary, true},
	".onnx":        {BucketBinary, true},
	".safetensors": {BucketBinary, true},
	".h5":          {BucketBinary, true},
	".npy":         {BucketBinary, true},
	".npz":         {BucketBinary, true},
	".parquet":     {BucketBinary, true},
	".pkl":         {BucketBinary, true},
}

// Classify 按扩展名把文件归入类型桶
// 未知扩展名落进 other 桶并按二进制对待 (追踪)
func Classify(filename string) Classification {
	ext := strings.ToLower(filepath.Ext(filename))
	if c, ok := extTable[ext]; ok {
		return c
	}
	return Classification{Bucket: BucketOther, Tracked: true}
}
