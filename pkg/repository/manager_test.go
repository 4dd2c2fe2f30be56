package repository

import (
	"context"
	"testing"

	"datavault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. 初始化
// -----------------------------------------------------------------------------

func TestManager_InitializeRepository(t *testing.T) {
	m := NewManager(newMemBackend())
	ctx := context.Background()

	// 空文件集也允许初始化
	_, err := m.InitializeRepository(ctx, "alice", "ds1", map[string]string{"source": "lab"}, nil)
	require.NoError(t, err)

	// 根快照必须被打上 v1.0.0 标签
	md, err := m.GetVersionMetadata(ctx, "alice", "ds1", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", md.Version)
	assert.Empty(t, md.Parent, "根版本没有父版本")
	assert.Equal(t, "lab", md.Meta["source"])
}

func TestManager_InitFailure_MapsToRepositoryInit(t *testing.T) {
	backend := newMemBackend()
	backend.failPut = true
	m := NewManager(backend)

	_, err := m.InitializeRepository(context.Background(), "alice", "ds1", nil, nil)
	assert.ErrorIs(t, err, ErrRepositoryInit)
}

// -----------------------------------------------------------------------------
// 2. 版本追加
// -----------------------------------------------------------------------------

func TestManager_CreateVersion_ParentLinkage(t *testing.T) {
	m := NewManager(newMemBackend())
	ctx := context.Background()

	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "a-v1"))
	mustCreateVersion(t, m, "alice", "ds1", "1.1.0",
		entry("a.csv", 100, "a-v1"), entry("b.csv", 50, "b-v1"))

	// 新版本的 parent 必须等于之前的 head
	md, err := m.GetVersionMetadata(ctx, "alice", "ds1", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", md.Parent)
	assert.Equal(t, []string{"b.csv"}, md.Delta.Added)
	assert.Empty(t, md.Delta.Modified)
	assert.Equal(t, 2, md.FileCount)
	assert.Equal(t, int64(150), md.TotalSize)
}

func TestManager_CreateVersion_MalformedSemver(t *testing.T) {
	backend := newMemBackend()
	m := NewManager(backend)
	ctx := context.Background()

	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "a"))

	// "1.2" 不是合法的语义化版本
	_, err := m.CreateVersion(ctx, "alice", "ds1", "1.2", "bad", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidVersion)

	// 关键：失败必须不留下任何仓库变更
	tags, err := backend.ListTags(ctx, RepoIDFor("alice", "ds1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0.0"}, tags, "非法版本号不得产生标签")

	head, err := backend.Head(ctx, RepoIDFor("alice", "ds1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), head.Generation, "非法版本号不得推进 head")
}

func TestManager_CreateVersion_NonSuccessor(t *testing.T) {
	m := NewManager(newMemBackend())
	ctx := context.Background()

	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "a"))
	mustCreateVersion(t, m, "alice", "ds1", "1.1.0", entry("a.csv", 100, "a"))

	// 等于当前 head -> 冲突
	_, err := m.CreateVersion(ctx, "alice", "ds1", "1.1.0", "dup", nil, nil)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// 小于当前 head -> 冲突
	_, err = m.CreateVersion(ctx, "alice", "ds1", "1.0.5", "old", nil, nil)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestManager_CreateVersion_StaleHead(t *testing.T) {
	backend := newMemBackend()
	m := NewManager(backend)
	ctx := context.Background()

	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "a"))

	// 模拟并发：另一个写者在我们读完 head 之后抢先推进了 generation
	repo := RepoIDFor("alice", "ds1")
	head, err := backend.Head(ctx, repo)
	require.NoError(t, err)
	require.NoError(t, backend.UpdateHead(ctx, repo, head.Commit, head.Generation))

	// SetTag 先于 UpdateHead，所以这里用一个新标签名来打到 CAS 失败的路径
	_, err = m.sealVersion(ctx, repo, sealInput{
		version: "1.9.9",
		parent:  head.Commit,
		author:  "alice",
		message: "racing",
		entries: nil,
		oldGen:  head.Generation, // 已经过期
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
}

// -----------------------------------------------------------------------------
// 3. 读取
// -----------------------------------------------------------------------------

func TestManager_GetVersionMetadata_NotFound(t *testing.T) {
	m := NewManager(newMemBackend())
	mustInit(t, m, "alice", "ds1")

	_, err := m.GetVersionMetadata(context.Background(), "alice", "ds1", "9.9.9")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestManager_GetFileList_FrozenInventory(t *testing.T) {
	m := NewManager(newMemBackend())
	ctx := context.Background()

	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "a"), entry("b.csv", 50, "b"))
	mustCreateVersion(t, m, "alice", "ds1", "1.1.0", entry("a.csv", 100, "a"))

	// 旧版本的清单必须保持冻结，不受新版本影响
	files, err := m.GetFileList(ctx, "alice", "ds1", "1.0.0")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.csv", files[0].Name)
	assert.Equal(t, "b.csv", files[1].Name)

	files, err = m.GetFileList(ctx, "alice", "ds1", "1.1.0")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestManager_ValidateChecksum(t *testing.T) {
	m := NewManager(newMemBackend())
	ctx := context.Background()

	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "original"))

	ok, err := m.ValidateChecksum(ctx, "alice", "ds1", "1.0.0", "a.csv",
		types.Checksum(mockChecksum("original")))
	require.NoError(t, err)
	assert.True(t, ok)

	// 不匹配返回 false，不报错
	ok, err = m.ValidateChecksum(ctx, "alice", "ds1", "1.0.0", "a.csv",
		types.Checksum(mockChecksum("tampered")))
	require.NoError(t, err)
	assert.False(t, ok)

	// 文件不存在才是错误
	_, err = m.ValidateChecksum(ctx, "alice", "ds1", "1.0.0", "ghost.csv",
		types.Checksum(mockChecksum("x")))
	assert.Error(t, err)
}

func TestManager_ListVersions_NewestFirst(t *testing.T) {
	m := NewManager(newMemBackend())
	ctx := context.Background()

	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "a"))
	mustCreateVersion(t, m, "alice", "ds1", "1.1.0", entry("a.csv", 100, "a2"))
	mustCreateVersion(t, m, "alice", "ds1", "2.0.0", entry("a.csv", 100, "a3"))

	history, err := m.ListVersions(ctx, "alice", "ds1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2.0.0", history[0].Version)
	assert.Equal(t, "1.1.0", history[1].Version)
	assert.Equal(t, "1.0.0", history[2].Version)
}

// -----------------------------------------------------------------------------
// 4. Fork
// -----------------------------------------------------------------------------

func TestManager_Fork_IndependentHistory(t *testing.T) {
	m := NewManager(newMemBackend())
	ctx := context.Background()

	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "a"))
	mustCreateVersion(t, m, "alice", "ds1", "1.1.0",
		entry("a.csv", 100, "a"), entry("b.csv", 50, "b"))

	// 从 1.1.0 fork 出新数据集
	_, err := m.ForkRepository(ctx, "alice", "ds1", "1.1.0", "bob", "ds2")
	require.NoError(t, err)

	// 新仓库从 1.0.0 重新计数，内容等于源版本
	files, err := m.GetFileList(ctx, "bob", "ds2", "1.0.0")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// 两边历史互相独立：源继续演进不影响 fork
	mustCreateVersion(t, m, "alice", "ds1", "2.0.0", entry("a.csv", 100, "a"))
	history, err := m.ListVersions(ctx, "bob", "ds2")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestManager_Fork_SourceNotFound(t *testing.T) {
	m := NewManager(newMemBackend())
	mustInit(t, m, "alice", "ds1", entry("a.csv", 100, "a"))

	_, err := m.ForkRepository(context.Background(), "alice", "ds1", "7.7.7", "bob", "ds2")
	assert.ErrorIs(t, err, ErrForkSourceNotFound)
}

// -----------------------------------------------------------------------------
// 5. 追踪规则
// -----------------------------------------------------------------------------

func TestManager_TrackerFor(t *testing.T) {
	m := NewManager(newMemBackend())
	mustInit(t, m, "alice", "ds1")

	tracker, err := m.TrackerFor(context.Background(), "alice", "ds1")
	require.NoError(t, err)

	assert.True(t, tracker.IsTracked("model.bin"), "二进制文件默认走大文件路径")
	assert.True(t, tracker.IsTracked("weights.safetensors"))
	assert.False(t, tracker.IsTracked("readme.md"), "小文本默认不追踪")
	assert.False(t, tracker.IsTracked("labels.csv"))
}
