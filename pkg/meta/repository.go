package meta

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDatasetNotFound  = errors.New("dataset not found in metadata")
	ErrDatasetExists    = errors.New("dataset already exists")
	ErrVersionNotFound  = errors.New("version not found in metadata")
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 数据集生命周期
// -----------------------------------------------------------------------------

// CreateDataset 在一个事务里同时落数据集记录和它的创建意图
// 意图先行：事务提交之后、副作用完成之前，pending 意图就是悬挂状态的证据
func (r *Repository) CreateDataset(ctx context.Context, ds *Dataset, intent *Intent) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(intent).Error; err != nil {
			return fmt.Errorf("failed to record intent: %w", err)
		}
		if err := tx.Create(ds).Error; err != nil {
			// 兼容性：处理不同数据库 (PG 与 SQLite) 的唯一约束错误
			if errors.Is(err, gorm.ErrDuplicatedKey) ||
				strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: %s/%s", ErrDatasetExists, ds.Owner, ds.Title)
			}
			return fmt.Errorf("failed to create dataset: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	var ds Dataset
	err := r.db.GetConn().WithContext(ctx).
		Where("id = ?", id).
		First(&ds).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// FindDataset 按 owner + title 查找
func (r *Repository) FindDataset(ctx context.Context, owner, title string) (*Dataset, error) {
	var ds Dataset
	err := r.db.GetConn().WithContext(ctx).
		Where("owner = ? AND title = ?", owner, title).
		First(&ds).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, owner, title)
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// UpdateDatasetHead 原子推进数据集的当前版本 (CAS - Compare And Swap)
// oldHead: 之前读到的 HeadVersion。数据库里现在的值不等于它就说明有人抢先改了。
func (r *Repository) UpdateDatasetHead(ctx context.Context, id, newLabel string, oldHead int64) error {
	result := r.db.GetConn().WithContext(ctx).Model(&Dataset{}).
		Where("id = ? AND head_version = ?", id, oldHead).
		Updates(map[string]any{
			"current_version": newLabel,
			"head_version":    gorm.Expr("head_version + 1"),
			"updated_at":      time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	// 关键检查：影响行数为 0 说明 head_version 不匹配 (被人抢先改了)
	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// DeleteDataset 原子删除数据集及其全部投影 (文件清单、版本索引、意图)
func (r *Repository) DeleteDataset(ctx context.Context, id string) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_id = ?", id).Delete(&FileRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("dataset_id = ?", id).Delete(&VersionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("dataset_id = ?", id).Delete(&Intent{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&Dataset{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
		}
		return nil
	})
}

// -----------------------------------------------------------------------------
// 2. 版本索引 (commit 投影)
// -----------------------------------------------------------------------------

// IndexVersion 将一次提交"投影"到 SQL 数据库中
// 写入是幂等的：Hash 已存在则什么都不做 (Do Nothing)，重放安全
func (r *Repository) IndexVersion(ctx context.Context, v *VersionModel) error {
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).
		Create(v).Error

	if err != nil {
		return fmt.Errorf("failed to index version: %w", err)
	}
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, datasetID, label string) (*VersionModel, error) {
	var v VersionModel
	err := r.db.GetConn().WithContext(ctx).
		Where("dataset_id = ? AND label = ?", datasetID, label).
		First(&v).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, datasetID, label)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVersions 按时间倒序列出数据集的版本索引 (dv log 的 SQL 路径)
func (r *Repository) FindVersions(ctx context.Context, datasetID string, limit int) ([]VersionModel, error) {
	var versions []VersionModel
	err := r.db.GetConn().WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&versions).Error
	return versions, err
}

// -----------------------------------------------------------------------------
// 3. 文件清单投影
// -----------------------------------------------------------------------------

// AppendFileRecords 批量写入一个版本的文件清单
// 同样幂等：(dataset, version, name) 冲突时跳过
func (r *Repository) AppendFileRecords(ctx context.Context, records []FileRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "dataset_id"}, {Name: "version"}, {Name: "name"},
			},
			DoNothing: true,
		}).
		Create(&records).Error

	if err != nil {
		return fmt.Errorf("failed to append file records: %w", err)
	}
	return nil
}

func (r *Repository) GetFileRecords(ctx context.Context, datasetID, version string) ([]FileRecord, error) {
	var records []FileRecord
	err := r.db.GetConn().WithContext(ctx).
		Where("dataset_id = ? AND version = ?", datasetID, version).
		Order("name ASC").
		Find(&records).Error
	return records, err
}

// -----------------------------------------------------------------------------
// 4. 意图 (saga/outbox)
// -----------------------------------------------------------------------------

func (r *Repository) CreateIntent(ctx context.Context, intent *Intent) error {
	return r.db.GetConn().WithContext(ctx).Create(intent).Error
}

// MarkIntent 迁移意图状态 (pending -> complete / failed)
func (r *Repository) MarkIntent(ctx context.Context, id, state string) error {
	result := r.db.GetConn().WithContext(ctx).Model(&Intent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":      state,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("intent %s not found", id)
	}
	return nil
}

// PendingIntents 列出创建时间早于 olderThan 的悬挂意图
// 启动清扫用：太新的 pending 可能还在正常执行中，不能动
func (r *Repository) PendingIntents(ctx context.Context, olderThan time.Time) ([]Intent, error) {
	var intents []Intent
	err := r.db.GetConn().WithContext(ctx).
		Where("state = ? AND created_at < ?", IntentPending, olderThan).
		Order("created_at ASC").
		Find(&intents).Error
	return intents, err
}
