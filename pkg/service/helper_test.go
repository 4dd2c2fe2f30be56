package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"datavault/pkg/blob"
	"datavault/pkg/blob/memory"
	"datavault/pkg/meta"
	"datavault/pkg/repository"
	"datavault/pkg/repository/fsrepo"
	"datavault/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 测试装配：内存 SQLite + 临时目录仓库后端 + 内存对象存储
// -----------------------------------------------------------------------------

type testEnv struct {
	svc         *Service
	metaRepo    *meta.Repository
	repoBackend repository.Backend
	repoRoot    string
	blobBackend *memory.Backend
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(&meta.Dataset{}, &meta.FileRecord{}, &meta.VersionModel{}, &meta.Intent{}))
	metaRepo := meta.NewRepository(metaDB)

	repoRoot := t.TempDir()
	repoBackend, err := fsrepo.NewBackend(repoRoot)
	require.NoError(t, err)

	blobBackend := memory.NewBackend()
	cfg := blob.DefaultConfig()
	cfg.Retry = blob.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	store := blob.NewClient(blobBackend, nil, cfg)

	return &testEnv{
		svc:         New(repository.NewManager(repoBackend), store, metaRepo),
		metaRepo:    metaRepo,
		repoBackend: repoBackend,
		repoRoot:    repoRoot,
		blobBackend: blobBackend,
	}
}

// mockChecksum 生成内容对应的 SHA256
func mockChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// fileIn 声明一个待上传文件，checksum 按 content 推出
func fileIn(name string, size int64, content string) FileInput {
	return FileInput{
		Name:        name,
		Size:        size,
		ContentType: "application/octet-stream",
		Checksum:    types.Checksum(mockChecksum(content)),
	}
}

// mustCreate 建好一个数据集，失败直接终止测试
func mustCreate(t *testing.T, env *testEnv, owner string, in CreateDatasetInput) *CreateDatasetResult {
	t.Helper()
	result, err := env.svc.CreateDataset(context.Background(), owner, in)
	require.NoError(t, err)
	return result
}
