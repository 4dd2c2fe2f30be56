// pkg/types/common.go
package types

import "strings"

// Hash 代表对象的唯一标识符 (SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool  { return h == "" }
func (h Hash) IsValid() bool { return len(h) == 64 } // 简单的长度检查

// Checksum 是文件全量内容的 SHA256 指纹 (与对象 Hash 区分开)
// 它在上传时计算一次，之后是 diff 和完整性校验的唯一依据
// —— 永远不要用文件名或大小做相等性判断。
type Checksum string

func (c Checksum) String() string { return string(c) }
func (c Checksum) IsValid() bool  { return len(c) == 64 }

// Visibility 数据集可见性
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) IsPrivate() bool { return v == VisibilityPrivate }

// StorageKey 是对象存储后端里的不透明定位符
// 格式: {visibility}/{owner}/{dataset}/{bucket}/{disambiguator}/{filename}
type StorageKey string

func (k StorageKey) String() string { return string(k) }

// Visibility 解析 Key 的第一段，判断下载是否需要授权令牌
// 解析失败时按 private 处理 (宁可拒绝，不可泄漏)
func (k StorageKey) Visibility() Visibility {
	seg, _, ok := strings.Cut(string(k), "/")
	if !ok || seg != string(VisibilityPublic) {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// RepoID 标识一个数据集对应的版本仓库
// 约定为 "{owner}--{dataset}"，由 repository.Manager 统一生成
type RepoID string

func (r RepoID) String() string { return string(r) }
