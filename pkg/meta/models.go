package meta

import (
	"time"

	"gorm.io/datatypes"
)

// Dataset 数据集主记录
type Dataset struct {
	// ID 是主键，uuid 字符串
	ID string `gorm:"primaryKey;type:char(36)"`

	// Owner + Title 联合唯一：同一用户不能有两个同名数据集
	Owner string `gorm:"uniqueIndex:idx_owner_title;type:varchar(100);not null"`
	Title string `gorm:"uniqueIndex:idx_owner_title;type:varchar(255);not null"`

	Description string `gorm:"type:text"`

	// Tags: 自由标签列表，JSON 数组 ["nlp", "asr"]
	Tags datatypes.JSON

	// Visibility: "public" / "private"
	Visibility string `gorm:"type:varchar(10);default:'public'"`

	// CurrentVersion 当前 head 的语义化版本标签 (例如 "1.2.0")
	CurrentVersion string `gorm:"type:varchar(32)"`

	// HeadVersion 用于乐观锁并发控制 (CAS)
	// 每次版本推进 +1，防止并发覆盖
	HeadVersion int64 `gorm:"default:1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Dataset) TableName() string {
	return "datasets"
}

// FileRecord 是版本文件清单在关系型数据库中的投影
// 真相源是 core.Manifest；这里只为 SQL 查询服务
type FileRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	// 一个文件名在 (dataset, version) 内唯一
	DatasetID string `gorm:"uniqueIndex:idx_file_identity;type:char(36);not null"`
	Version   string `gorm:"uniqueIndex:idx_file_identity;type:varchar(32);not null"`
	Name      string `gorm:"uniqueIndex:idx_file_identity;type:varchar(255);not null"`

	Size        int64
	ContentType string `gorm:"type:varchar(100)"`

	// StorageKey 全局唯一：消歧段保证同名文件也不会撞 Key
	StorageKey string `gorm:"type:varchar(512);index"`

	// Checksum 文件内容 SHA256，完整性校验和 diff 的唯一依据
	Checksum string `gorm:"type:char(64)"`

	CreatedAt time.Time
}

func (FileRecord) TableName() string {
	return "file_records"
}

// VersionModel 是 core.Commit 在关系型数据库中的投影 (索引)
// 用于快速查询历史 (dv log)，支持按作者、时间、元数据搜索
// 注意：为了避免跟 core.Commit 混淆，我们叫它 VersionModel
type VersionModel struct {
	// Hash 是主键 (commit 的内容地址)
	Hash string `gorm:"primaryKey;type:char(64)"`

	// 一个版本标签在数据集内唯一
	DatasetID string `gorm:"uniqueIndex:idx_dataset_label;type:char(36);not null"`
	Label     string `gorm:"uniqueIndex:idx_dataset_label;type:varchar(32);not null"`

	// Parent 父版本标签，根版本为空
	Parent string `gorm:"type:varchar(32)"`

	Author    string `gorm:"index;type:varchar(100)"`
	Message   string `gorm:"type:text"`
	Timestamp int64  `gorm:"index"` // int64 存时间戳，方便范围查询

	// Meta: 数据来源、采集参数等非结构化元数据
	Meta datatypes.JSON

	CreatedAt time.Time
}

func (VersionModel) TableName() string {
	return "versions"
}

// Intent 意图记录 (saga/outbox)
// 元数据库、版本仓库、对象存储三方没有共同事务，
// 先落意图，做副作用，最后标记完成；启动时清扫悬挂的 pending
type Intent struct {
	ID        string `gorm:"primaryKey;type:char(36)"`
	DatasetID string `gorm:"index;type:char(36)"`

	// Kind: 意图种类，见下面的常量
	Kind string `gorm:"type:varchar(32);not null"`

	// State: pending -> complete / failed
	State string `gorm:"index;type:varchar(16);default:'pending'"`

	// Payload 补偿需要的上下文 (JSON)
	Payload datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Intent) TableName() string {
	return "intents"
}

const (
	IntentPending  = "pending"
	IntentComplete = "complete"
	IntentFailed   = "failed"
)

const (
	IntentCreateDataset = "create_dataset"
	IntentCreateVersion = "create_version"
	IntentForkDataset   = "fork_dataset"
)
