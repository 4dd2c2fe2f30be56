package meta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// 注意：文件名必须以 _test.go 结尾，否则会被编译进生产代码！
// -----------------------------------------------------------------------------

// setupTestRepo 构建隔离的测试环境 (每个测试一个内存 SQLite)
func setupTestRepo(t *testing.T) *Repository {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(&Dataset{}, &FileRecord{}, &VersionModel{}, &Intent{}))

	return NewRepository(metaDB)
}

// mockHash 生成合法的测试用 Hash
func mockHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// mustCreateDataset 创建数据集 (连带意图)，失败直接终止测试
func mustCreateDataset(t *testing.T, repo *Repository, owner, title string) *Dataset {
	t.Helper()
	ds := &Dataset{
		ID:             uuid.NewString(),
		Owner:          owner,
		Title:          title,
		Visibility:     "public",
		CurrentVersion: "1.0.0",
	}
	intent := &Intent{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		Kind:      IntentCreateDataset,
		State:     IntentPending,
	}
	require.NoError(t, repo.CreateDataset(context.Background(), ds, intent))
	return ds
}

// mustIndexVersion 强制索引版本，失败则终止
func mustIndexVersion(t *testing.T, repo *Repository, v *VersionModel, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, repo.IndexVersion(context.Background(), v), msgAndArgs...)
}
