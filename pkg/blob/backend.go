package blob

import (
	"context"
	"io"
	"time"

	"datavault/pkg/types"
)

// SignedURL 由后端签发的限时访问地址
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// ObjectBackend 抽象对象存储后端 (S3/MinIO 或内存实现)
// 职责只有两类：签发限时 URL，以及面向分块管理的直接读写
type ObjectBackend interface {
	// PresignPut 签发限时上传 URL
	PresignPut(ctx context.Context, key types.StorageKey, ttl time.Duration) (SignedURL, error)

	// PresignGet 签发限时下载 URL
	PresignGet(ctx context.Context, key types.StorageKey, ttl time.Duration) (SignedURL, error)

	// PutObject 直接写入一个对象 (分块上传用)
	PutObject(ctx context.Context, key types.StorageKey, data []byte) error

	// GetObject 流式读取一个对象，找不到时返回 ErrObjectNotFound
	GetObject(ctx context.Context, key types.StorageKey) (io.ReadCloser, error)

	// ListKeys 列出指定前缀下的所有 Key (清理残块用)
	ListKeys(ctx context.Context, prefix types.StorageKey) ([]types.StorageKey, error)

	// DeleteObject 删除一个对象；对象不存在不算错误
	DeleteObject(ctx context.Context, key types.StorageKey) error
}
