package e2e

import (
	"bytes"
	"context"
	"crypto/rand"
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
	"datavault/pkg/service"
	"datavault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stack struct {
	svc     *service.Service
	store   *blob.Client
	objects *memory.Backend
}

func newStack(t *testing.T) *stack {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(&meta.Dataset{}, &meta.FileRecord{}, &meta.VersionModel{}, &meta.Intent{}))

	repoBackend, err := fsrepo.NewBackend(t.TempDir())
	require.NoError(t, err)

	objects := memory.NewBackend()
	cfg := blob.DefaultConfig()
	cfg.ChunkSize = 64 * 1024 // 小分片，让 20MB 数据也能走满并发路径
	cfg.Retry = blob.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	store := blob.NewClient(objects, nil, cfg)

	return &stack{
		svc:     service.New(repository.NewManager(repoBackend), store, meta.NewRepository(metaDB)),
		store:   store,
		objects: objects,
	}
}

func checksumOf(data []byte) types.Checksum {
	sum := sha256.Sum256(data)
	return types.Checksum(hex.EncodeToString(sum[:]))
}

// honorTickets 扮演客户端：按凭证把声明过的内容真正传上去
func honorTickets(t *testing.T, s *stack, tickets []service.FileUploadTicket, contents map[string][]byte) {
	t.Helper()
	ctx := context.Background()
	for _, ticket := range tickets {
		data, ok := contents[ticket.Name]
		require.True(t, ok, "no content prepared for %s", ticket.Name)
		if ticket.Tracked {
			err := s.store.UploadLargeFile(ctx, bytes.NewReader(data), ticket.StorageKey, int64(len(data)), nil)
			require.NoError(t, err)
		} else {
			require.NoError(t, s.objects.PutObject(ctx, ticket.StorageKey, data))
		}
	}
}

// TestFullWorkflow 跑一遍完整的数据集生命周期：
// create -> upload -> validate -> version -> diff -> rollback -> fork -> delete
func TestFullWorkflow(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	const alice = "alice"

	// 1. 准备数据：一个小的 csv 和一个 20MB 的模型文件 (走分片路径)
	// -------------------------------------------------------------
	csvV1 := []byte("id,label\n1,cat\n2,dog\n")
	model := make([]byte, 20*1024*1024)
	_, err := rand.Read(model)
	require.NoError(t, err)

	// 2. 创建数据集并上传
	// -------------------------------------------------------------
	t.Log("Step 1: Create dataset...")
	created, err := s.svc.CreateDataset(ctx, alice, service.CreateDatasetInput{
		Title:       "imagenet-mini",
		Description: "sample dataset",
		Tags:        []string{"vision"},
		Files: []service.FileInput{
			{Name: "labels.csv", Size: int64(len(csvV1)), ContentType: "text/csv", Checksum: checksumOf(csvV1)},
			{Name: "model.safetensors", Size: int64(len(model)), ContentType: "application/octet-stream", Checksum: checksumOf(model)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", created.Dataset.CurrentVersion)
	require.Len(t, created.UploadTickets, 2)

	dsID := created.Dataset.ID
	honorTickets(t, s, created.UploadTickets, map[string][]byte{
		"labels.csv":        csvV1,
		"model.safetensors": model,
	})

	// 3. 内容校验：上传后必须全绿
	// -------------------------------------------------------------
	t.Log("Step 2: Validate with content check...")
	report, err := s.svc.ValidateVersion(ctx, alice, dsID, "1.0.0", service.ValidationOptions{CheckContent: true})
	require.NoError(t, err)
	assert.True(t, report.Valid, "issues: %v", report.Issues)
	assert.Equal(t, 2, report.FileCount)

	// 4. 提交新版本：csv 变了，模型不动 (复用 StorageKey，零重传)
	// -------------------------------------------------------------
	t.Log("Step 3: Commit 1.1.0...")
	csvV2 := []byte("id,label\n1,cat\n2,dog\n3,bird\n")

	var modelKey types.StorageKey
	for _, tk := range created.UploadTickets {
		if tk.Name == "model.safetensors" {
			modelKey = tk.StorageKey
		}
	}
	require.NotEmpty(t, modelKey)

	v2, err := s.svc.CreateVersion(ctx, alice, dsID, service.CreateVersionInput{
		Version: "1.1.0",
		Changes: "add bird class",
		Files: []service.FileInput{
			{Name: "labels.csv", Size: int64(len(csvV2)), ContentType: "text/csv", Checksum: checksumOf(csvV2)},
			{Name: "model.safetensors", Size: int64(len(model)), ContentType: "application/octet-stream", Checksum: checksumOf(model), StorageKey: modelKey},
		},
	})
	require.NoError(t, err)
	require.Len(t, v2.UploadTickets, 1, "only the changed file needs a ticket")
	assert.Equal(t, "labels.csv", v2.UploadTickets[0].Name)

	honorTickets(t, s, v2.UploadTickets, map[string][]byte{"labels.csv": csvV2})

	// 5. 比对两个版本
	// -------------------------------------------------------------
	t.Log("Step 4: Diff 1.0.0 -> 1.1.0...")
	cmp, err := s.svc.CompareVersions(ctx, alice, dsID, "1.0.0", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, 1, cmp.Diff.Stats.ModifiedCount)
	assert.Equal(t, 1, cmp.Diff.Stats.UnchangedCount)
	assert.Contains(t, cmp.DownloadURLs, "labels.csv")

	// 6. 回滚到 1.0.0：产生 1.2.0，内容与 1.0.0 一致，且不需要上传
	// -------------------------------------------------------------
	t.Log("Step 5: Rollback to 1.0.0...")
	rb, err := s.svc.RollbackVersion(ctx, alice, dsID, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", rb.Version)
	assert.Empty(t, rb.UploadTickets)

	rolled, err := s.svc.CompareVersions(ctx, alice, dsID, "1.0.0", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, 0, rolled.Diff.Stats.ModifiedCount)
	assert.Equal(t, 2, rolled.Diff.Stats.UnchangedCount)

	// 回滚后的内容校验仍然全绿 (对象是共享的)
	report, err = s.svc.ValidateVersion(ctx, alice, dsID, "1.2.0", service.ValidationOptions{CheckContent: true})
	require.NoError(t, err)
	assert.True(t, report.Valid)

	// 7. Fork：bob 从 1.1.0 开出自己的数据集
	// -------------------------------------------------------------
	t.Log("Step 6: Fork as bob...")
	fork, err := s.svc.ForkDataset(ctx, "bob", dsID, "1.1.0", "imagenet-mini-bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", fork.Owner)
	assert.Equal(t, "1.0.0", fork.CurrentVersion, "fork restarts its own history")

	history, err := s.svc.ListVersions(ctx, "bob", fork.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	// 8. 删除原数据集：fork 不受影响
	// -------------------------------------------------------------
	t.Log("Step 7: Delete original...")
	require.NoError(t, s.svc.DeleteDataset(ctx, alice, dsID))

	_, err = s.svc.ListVersions(ctx, alice, dsID)
	assert.ErrorIs(t, err, service.ErrDatasetNotFound)

	// fork 的历史还在
	history, err = s.svc.ListVersions(ctx, "bob", fork.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	t.Log("✅ SUCCESS: Full workflow passed!")
}

// TestWorkflow_ChunkedRoundTrip 验证大文件经分片上传后能按字节还原
func TestWorkflow_ChunkedRoundTrip(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	payload := make([]byte, 3*1024*1024)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	created, err := s.svc.CreateDataset(ctx, "alice", service.CreateDatasetInput{
		Title: "chunked",
		Files: []service.FileInput{
			{Name: "data.bin", Size: int64(len(payload)), ContentType: "application/octet-stream", Checksum: checksumOf(payload)},
		},
	})
	require.NoError(t, err)
	require.Len(t, created.UploadTickets, 1)
	ticket := created.UploadTickets[0]
	require.True(t, ticket.Tracked)

	require.NoError(t, s.store.UploadLargeFile(ctx, bytes.NewReader(payload), ticket.StorageKey, int64(len(payload)), nil))

	buf := newMemWriterAt(len(payload))
	require.NoError(t, s.store.DownloadLargeFile(ctx, ticket.StorageKey, buf, nil))
	assert.True(t, bytes.Equal(payload, buf.Bytes()), "restored bytes must match")

	report, err := s.svc.ValidateVersion(ctx, "alice", created.Dataset.ID, "1.0.0", service.ValidationOptions{CheckContent: true})
	require.NoError(t, err)
	assert.True(t, report.Valid, "issues: %v", report.Issues)
}

// memWriterAt 按需扩容的内存 WriterAt
type memWriterAt struct {
	buf []byte
}

func newMemWriterAt(size int) *memWriterAt {
	return &memWriterAt{buf: make([]byte, 0, size)}
}

func (m *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

func (m *memWriterAt) Bytes() []byte { return m.buf }
