package core

import (
	"datavault/pkg/types"
)

// Commit 是一个版本的不可变快照
// Hash 由"清单 + 元数据"通过 Canonical CBOR 决定性导出：
// 相同输入重算必然得到相同的提交标识
type Commit struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType `cbor:"t"`

	// ManifestCid 指向本版本冻结的文件清单
	ManifestCid Link `cbor:"mh"`

	// Parents 最多一个元素 —— 历史是线性链，分叉只通过 fork 新数据集产生
	// (保留切片形态是为了根提交的空值有自然表示)
	Parents []Link `cbor:"p"`

	// Version 语义化版本标签 (如 "1.2.0")
	Version string `cbor:"v"`

	Author  string `cbor:"a"`
	Message string `cbor:"m"`

	// Meta 附在版本上的自由键值对 (会参与 diff 的 metadata 变更比对)
	Meta map[string]string `cbor:"md,omitempty"`

	// Timestamp 由调用方传入而不是内部取 time.Now()
	// 否则"同输入可复现"就不成立了
	Timestamp int64 `cbor:"ts"`
}

// NewCommit 创建并密封一个提交对象
// parent 传零值 Link 表示根提交
func NewCommit(manifestHash types.Hash, parent types.Hash, version, author, msg string, meta map[string]string, timestamp int64) (*Commit, error) {
	var parents []Link
	if !parent.IsZero() {
		parents = []Link{NewLink(parent.String())}
	}

	c := &Commit{
		TypeVal:     TypeCommit,
		ManifestCid: NewLink(manifestHash.String()),
		Parents:     parents,
		Version:     version,
		Author:      author,
		Message:     msg,
		Meta:        meta,
		Timestamp:   timestamp,
	}

	h, b, err := CalculateHash(c)
	if err != nil {
		return nil, err
	}
	c.hash = h
	c.rawBytes = b
	return c, nil
}

// Parent 返回父提交 Hash，根提交返回零值
func (c *Commit) Parent() types.Hash {
	if len(c.Parents) == 0 {
		return ""
	}
	return types.Hash(c.Parents[0].Hash)
}

func (c *Commit) Type() ObjectType { return TypeCommit }
func (c *Commit) ID() types.Hash   { return c.hash }
func (c *Commit) Bytes() []byte    { return c.rawBytes }
