package repository

import (
	"context"
	"io"

	"datavault/pkg/core"
	"datavault/pkg/types"
)

// Head 是仓库当前最新提交的指针
// Generation 用于乐观锁并发控制 (CAS)：每次前进 +1，防止并发覆盖
type Head struct {
	Commit     types.Hash
	Generation int64
}

// Backend 抽象了提交/打标签能力的版本仓库后端
// 实现可以是文件系统目录、嵌入式内容寻址存储、或者直接建在元数据库上 ——
// Manager 不假设任何一种
type Backend interface {
	// Init 创建一个全新仓库：目录骨架 + 大文件追踪规则
	Init(ctx context.Context, repo types.RepoID, trackingRules []string) error

	// Exists 检查仓库是否已经初始化过
	Exists(ctx context.Context, repo types.RepoID) (bool, error)

	// Remove 整库删除 (数据集删除时的级联清理)
	Remove(ctx context.Context, repo types.RepoID) error

	// Put 将一个内容寻址对象持久化 (幂等：同 Hash 重复写无副作用)
	Put(ctx context.Context, repo types.RepoID, obj core.Object) error

	// Get 根据 Hash 读取原始数据
	// 返回 io.ReadCloser 而不是 []byte，保留流式读取的余地
	Get(ctx context.Context, repo types.RepoID, hash types.Hash) (io.ReadCloser, error)

	// Head 读取当前指针；空仓库返回 ErrNoHead
	Head(ctx context.Context, repo types.RepoID) (Head, error)

	// UpdateHead 原子推进指针 (CAS)
	// oldGeneration 不匹配时返回 ErrHeadUpdated，首次创建传 0
	UpdateHead(ctx context.Context, repo types.RepoID, newCommit types.Hash, oldGeneration int64) error

	// SetTag 创建标签；标签是一次性的，已存在则返回 ErrTagExists
	SetTag(ctx context.Context, repo types.RepoID, name string, commit types.Hash) error

	// GetTag 解析标签到提交；不存在返回 ErrTagNotFound
	GetTag(ctx context.Context, repo types.RepoID, name string) (types.Hash, error)

	// ListTags 枚举所有标签名
	ListTags(ctx context.Context, repo types.RepoID) ([]string, error)

	// TrackingRules 读取 Init 时写入的大文件追踪规则
	TrackingRules(ctx context.Context, repo types.RepoID) ([]string, error)
}
