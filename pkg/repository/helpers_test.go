package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"datavault/pkg/core"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockChecksum 生成一个合法的 64 字符 Hex 指纹
func mockChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// entry 快速构造清单条目，checksum 由 content 推导
func entry(name string, size int64, content string) core.ManifestEntry {
	return core.ManifestEntry{
		Name:        name,
		Size:        size,
		ContentType: "text/csv",
		StorageKey:  "public/alice/ds/text/tok000/" + name,
		Checksum:    mockChecksum(content),
	}
}

func mustManifest(t *testing.T, entries ...core.ManifestEntry) *core.Manifest {
	t.Helper()
	m, err := core.NewManifest(entries)
	require.NoError(t, err)
	return m
}

// mustInit 初始化仓库并提交根快照，失败直接终止测试
func mustInit(t *testing.T, m *Manager, owner, dataset string, entries ...core.ManifestEntry) {
	t.Helper()
	_, err := m.InitializeRepository(context.Background(), owner, dataset, nil, entries)
	require.NoError(t, err)
}

// mustCreateVersion 追加版本，失败直接终止测试
func mustCreateVersion(t *testing.T, m *Manager, owner, dataset, version string, entries ...core.ManifestEntry) {
	t.Helper()
	_, err := m.CreateVersion(context.Background(), owner, dataset, version, "test change", nil, entries)
	require.NoError(t, err)
}
