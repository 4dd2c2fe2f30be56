package core

import "datavault/pkg/types"

// ObjectType 定义了 DataVault 中的对象类型
type ObjectType string

const (
	TypeManifest ObjectType = "manifest" // 版本清单 (一个版本冻结的文件集合)
	TypeCommit   ObjectType = "commit"   // 版本快照
)

// Object 是所有内容寻址节点的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的哈希值
	// 注意：在对象被密封(Seal/Serialize)之前，这可能为空
	ID() types.Hash

	// Bytes 返回对象的序列化数据 (用于存储)
	Bytes() []byte
}
