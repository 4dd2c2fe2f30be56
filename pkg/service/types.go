package service

import (
	"time"

	"datavault/pkg/repository"
	"datavault/pkg/types"
)

// FileInput 调用方声明的一个文件
// StorageKey 非空表示复用已上传的对象 (版本间未变化的文件)；
// 为空则由服务签发新的上传凭证
type FileInput struct {
	Name        string
	Size        int64
	ContentType string
	Checksum    types.Checksum
	StorageKey  types.StorageKey
}

// FileUploadTicket 返回给调用方的上传凭证
type FileUploadTicket struct {
	Name       string
	StorageKey types.StorageKey
	UploadURL  string
	Tracked    bool
}

// DatasetInfo 数据集描述符 (对外视图)
type DatasetInfo struct {
	ID             string
	Owner          string
	Title          string
	Description    string
	Tags           []string
	Visibility     types.Visibility
	CurrentVersion string
	CreatedAt      time.Time
}

// CreateDatasetInput createDataset 的入参
type CreateDatasetInput struct {
	Title       string
	Description string
	Tags        []string
	IsPrivate   bool
	Meta        map[string]string
	Files       []FileInput
}

// CreateDatasetResult 数据集描述符 + 每个声明文件的上传凭证
type CreateDatasetResult struct {
	Dataset       *DatasetInfo
	UploadTickets []FileUploadTicket
}

// CreateVersionInput createVersion 的入参
// Files 是新版本的完整文件集 (清单是冻结的全量快照，不是增量)
type CreateVersionInput struct {
	Version string
	Changes string
	Meta    map[string]string
	Files   []FileInput
}

// CreateVersionResult 提交结果 + 新文件的上传凭证
type CreateVersionResult struct {
	CommitID      types.Hash
	Version       string
	UploadTickets []FileUploadTicket
}

// CompareResult diff + 每个变更文件的限时下载地址
type CompareResult struct {
	Diff         *repository.Diff
	DownloadURLs map[string]string // 文件名 -> 签名 GET URL
}

// ValidationIssue 校验发现的一个问题 (数据，不是异常)
type ValidationIssue struct {
	File      string
	Kind      string // "missing_object" / "checksum_mismatch"
	Severity  string // "error"；"warning" 级别留给将来的软校验
	Detail    string
	Timestamp time.Time
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationOptions validateVersion 的开关
type ValidationOptions struct {
	// CheckContent 为 true 时逐文件流式比对对象存储里的实际内容
	// 关掉则只做清单自洽性检查和统计
	CheckContent bool
}

// ValidationResult 聚合校验结论：问题列表 + 清单统计
// 校验失败是结果数据的一部分，不通过 error 通道传播
type ValidationResult struct {
	Valid  bool
	Issues []ValidationIssue

	FileCount   int
	TotalSize   int64
	AvgSize     int64
	ByExtension map[string]int
}
