package blob

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"datavault/pkg/types"

	"golang.org/x/sync/semaphore"
)

// BatchItem 批量上传里的一个独立文件
type BatchItem struct {
	Key    types.StorageKey
	Source io.Reader
	Size   int64
}

// BatchResult 单个文件的上传结果，Err 为 nil 表示成功
type BatchResult struct {
	Key types.StorageKey
	Err error
}

// BatchUpload 在共享并发上限下上传多个互相独立的文件
//
// 失败按文件隔离：一个文件传坏了不中止其余文件，
// 最终按输入顺序返回逐文件结果。progress 报告的是文件粒度的整体进度。
func (c *Client) BatchUpload(ctx context.Context, items []BatchItem, limit int, progress ProgressFunc) []BatchResult {
	if limit <= 0 {
		limit = c.cfg.MaxConcurrency
	}

	results := make([]BatchResult, len(items))
	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup
	var done atomic.Int64
	var progressMu sync.Mutex

	for i, item := range items {
		results[i].Key = item.Key

		if err := sem.Acquire(ctx, 1); err != nil {
			// 整批被取消：剩余文件统一标记，不再派发
			for j := i; j < len(items); j++ {
				results[j].Key = items[j].Key
				results[j].Err = err
			}
			break
		}

		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()
			defer sem.Release(1)

			results[i].Err = c.uploadSingle(ctx, item)

			if progress != nil {
				n := done.Add(1)
				progressMu.Lock()
				progress(float64(n) / float64(len(items)))
				progressMu.Unlock()
			}
		}(i, item)
	}

	wg.Wait()
	return results
}

// uploadSingle 小文件单块直传，大文件走分块路径
func (c *Client) uploadSingle(ctx context.Context, item BatchItem) error {
	if item.Size > c.cfg.ChunkSize {
		return c.UploadLargeFile(ctx, item.Source, item.Key, item.Size, nil)
	}

	data, err := io.ReadAll(item.Source)
	if err != nil {
		return err
	}
	return withRetry(ctx, c.cfg.Retry, func() error {
		return c.backend.PutObject(ctx, item.Key, data)
	})
}
