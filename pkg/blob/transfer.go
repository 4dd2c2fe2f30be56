package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"datavault/pkg/types"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ProgressFunc 进度回调，fraction 取 [0,1]
// 可能被多个 worker goroutine 调用，Client 内部已做串行化
type ProgressFunc func(fraction float64)

// chunkKey 第 idx 块的存储 Key: {storageKey}/chunk-000042
// 六位零填充让字典序和数值序一致，List 回来直接可排
func chunkKey(key types.StorageKey, idx int) types.StorageKey {
	return types.StorageKey(fmt.Sprintf("%s/chunk-%06d", key, idx))
}

func parseChunkIndex(key types.StorageKey) (int, bool) {
	i := strings.LastIndex(string(key), "/chunk-")
	if i < 0 {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(string(key)[i:], "/chunk-%d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}

// UploadLargeFile 把 source 切成固定大小的块并发上传到 storageKey 之下
//
// 流程：
//  1. 顺序读块 (io.Reader 只能单向读)，交给有界 worker 池并发 PUT
//  2. 每块独立走重试预算；任何一块预算用尽即宣告整体失败
//  3. 失败后尽力清理已写入的残块，再把原始错误包进 ErrTransferExhausted 抛出
func (c *Client) UploadLargeFile(ctx context.Context, source io.Reader, storageKey types.StorageKey, totalSize int64, progress ProgressFunc) error {
	totalChunks := int((totalSize + c.cfg.ChunkSize - 1) / c.cfg.ChunkSize)
	if totalChunks == 0 {
		totalChunks = 1 // 空文件也写一个空块，下载侧才有东西可列
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(c.cfg.MaxConcurrency))
	reporter := newProgressReporter(totalChunks, progress)

	for idx := 0; ; idx++ {
		buf := make([]byte, c.cfg.ChunkSize)
		n, readErr := io.ReadFull(source, buf)
		if readErr == io.EOF && idx > 0 {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			// 源读失败同样留下了已上传的残块，清理口径与重试耗尽一致
			_ = g.Wait()
			c.cleanupChunks(ctx, storageKey)
			return fmt.Errorf("read chunk %d: %w", idx, readErr)
		}
		data := buf[:n]

		if err := sem.Acquire(gctx, 1); err != nil {
			break // 某个 worker 已经失败，停止派发
		}

		idx := idx
		g.Go(func() error {
			defer sem.Release(1)
			err := withRetry(gctx, c.cfg.Retry, func() error {
				return c.backend.PutObject(gctx, chunkKey(storageKey, idx), data)
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", idx, err)
			}
			reporter.step()
			return nil
		})

		// 最后一个不完整块 (或恰好整除时的 EOF) 读完即停
		if readErr == io.ErrUnexpectedEOF || (readErr == io.EOF && idx == 0) {
			break
		}
		if int64(n) < c.cfg.ChunkSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		c.cleanupChunks(ctx, storageKey)
		return fmt.Errorf("%w: upload %s: %v", ErrTransferExhausted, storageKey, err)
	}
	return nil
}

// DownloadLargeFile 把 storageKey 下的所有块并发拉回并按偏移写入 dest
// 块大小与上传侧一致，所以块号 * ChunkSize 就是写入偏移
func (c *Client) DownloadLargeFile(ctx context.Context, storageKey types.StorageKey, dest io.WriterAt, progress ProgressFunc) error {
	keys, err := c.backend.ListKeys(ctx, storageKey)
	if err != nil {
		return fmt.Errorf("list chunks of %s: %w", storageKey, err)
	}

	// 先过滤掉前缀下混进来的非块对象，进度分母只数真正的块
	type chunkRef struct {
		key types.StorageKey
		idx int
	}
	var chunks []chunkRef
	for _, key := range keys {
		if idx, ok := parseChunkIndex(key); ok {
			chunks = append(chunks, chunkRef{key: key, idx: idx})
		}
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks under %s", ErrObjectNotFound, storageKey)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].idx < chunks[j].idx })

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(c.cfg.MaxConcurrency))
	reporter := newProgressReporter(len(chunks), progress)

	for _, ref := range chunks {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}

		key, idx := ref.key, ref.idx
		g.Go(func() error {
			defer sem.Release(1)
			err := withRetry(gctx, c.cfg.Retry, func() error {
				reader, err := c.backend.GetObject(gctx, key)
				if err != nil {
					return err
				}
				defer reader.Close()

				data, err := io.ReadAll(reader)
				if err != nil {
					return err
				}
				_, err = dest.WriteAt(data, int64(idx)*c.cfg.ChunkSize)
				return err
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", idx, err)
			}
			reporter.step()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: download %s: %v", ErrTransferExhausted, storageKey, err)
	}
	return nil
}

// cleanupChunks 尽力清理 storageKey 下的残块
// 自身也有重试轮数上限；清理失败只记日志，绝不吞掉原始传输错误
func (c *Client) cleanupChunks(ctx context.Context, storageKey types.StorageKey) {
	// 原 ctx 可能已被取消，清理用独立的 context
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.CleanupAttempts; attempt++ {
		keys, err := c.backend.ListKeys(cleanupCtx, storageKey)
		if err != nil {
			lastErr = err
			time.Sleep(c.cfg.Retry.InitialDelay)
			continue
		}

		lastErr = nil
		for _, key := range keys {
			if err := c.backend.DeleteObject(cleanupCtx, key); err != nil {
				lastErr = err
			}
		}
		if lastErr == nil {
			return
		}
		time.Sleep(c.cfg.Retry.InitialDelay)
	}

	slog.Warn("partial chunk cleanup failed",
		"storage_key", storageKey,
		"attempts", c.cfg.CleanupAttempts,
		"error", lastErr)
}

// progressReporter 把多 worker 的完成计数折算成单调递增的 fraction
type progressReporter struct {
	total int64
	done  atomic.Int64
	mu    sync.Mutex
	fn    ProgressFunc
}

func newProgressReporter(total int, fn ProgressFunc) *progressReporter {
	return &progressReporter{total: int64(total), fn: fn}
}

func (r *progressReporter) step() {
	if r.fn == nil {
		return
	}
	done := r.done.Add(1)
	r.mu.Lock()
	r.fn(float64(done) / float64(r.total))
	r.mu.Unlock()
}
