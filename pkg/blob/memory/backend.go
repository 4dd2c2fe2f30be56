// Package memory 提供 blob.ObjectBackend 的内存实现
// 主要服务于测试：支持按 Key 前缀注入瞬态失败，模拟不稳定的对象存储
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"datavault/pkg/blob"
	"datavault/pkg/types"
)

type Backend struct {
	mu      sync.Mutex
	objects map[types.StorageKey][]byte

	// FailPutPrefix 非空时，所有落在该前缀下的 PutObject 都报错
	FailPutPrefix string

	// putCount 统计 PutObject 调用次数 (含失败)，测试断言重试行为用
	putCount int
}

func NewBackend() *Backend {
	return &Backend{objects: make(map[types.StorageKey][]byte)}
}

func (b *Backend) PresignPut(ctx context.Context, key types.StorageKey, ttl time.Duration) (blob.SignedURL, error) {
	return blob.SignedURL{
		URL:       fmt.Sprintf("memory://put/%s", key),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (b *Backend) PresignGet(ctx context.Context, key types.StorageKey, ttl time.Duration) (blob.SignedURL, error) {
	return blob.SignedURL{
		URL:       fmt.Sprintf("memory://get/%s?sig=%d", key, time.Now().UnixNano()),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (b *Backend) PutObject(ctx context.Context, key types.StorageKey, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putCount++
	if b.FailPutPrefix != "" && strings.HasPrefix(string(key), b.FailPutPrefix) {
		return fmt.Errorf("injected put failure for %s", key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	b.objects[key] = buf
	return nil
}

func (b *Backend) GetObject(ctx context.Context, key types.StorageKey) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Backend) ListKeys(ctx context.Context, prefix types.StorageKey) ([]types.StorageKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []types.StorageKey
	for key := range b.objects {
		if strings.HasPrefix(string(key), string(prefix)) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *Backend) DeleteObject(ctx context.Context, key types.StorageKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// PutCount 返回至今为止 PutObject 的调用次数
func (b *Backend) PutCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putCount
}
