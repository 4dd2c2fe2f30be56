package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"datavault/pkg/types"
)

// Config 传输客户端的可调参数
type Config struct {
	// URLTTL 签名 URL 的有效期
	URLTTL time.Duration

	// CacheSafety 缓存条目提前多久失效
	// 保证缓存里拿出来的 URL 永远不会是后端已经拒收的
	CacheSafety time.Duration

	// ChunkSize 分块传输的固定块大小
	ChunkSize int64

	// MaxConcurrency 同时在途的分块操作上限
	MaxConcurrency int

	// Retry 单块操作的重试策略
	Retry RetryPolicy

	// CleanupAttempts 传输失败后清理残块的最大轮数
	CleanupAttempts int
}

func DefaultConfig() Config {
	return Config{
		URLTTL:          time.Hour,
		CacheSafety:     60 * time.Second,
		ChunkSize:       8 << 20, // 8MB
		MaxConcurrency:  4,
		Retry:           DefaultRetryPolicy(),
		CleanupAttempts: 3,
	}
}

// Client 内容存储客户端
// 职责：签名 URL 签发 (+缓存)、分块并发传输、校验和验证、批量上传
type Client struct {
	backend ObjectBackend
	cache   URLCache
	cfg     Config
}

// NewClient 构造客户端；cache 传 nil 时用进程内 TTL 缓存
func NewClient(backend ObjectBackend, cache URLCache, cfg Config) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = DefaultConfig().URLTTL
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.CleanupAttempts <= 0 {
		cfg.CleanupAttempts = DefaultConfig().CleanupAttempts
	}
	return &Client{backend: backend, cache: cache, cfg: cfg}
}

// UploadTicket 上传准入凭证：Key + 签名 PUT URL + 分类结果
type UploadTicket struct {
	Key       types.StorageKey
	URL       string
	ExpiresAt time.Time
	Bucket    Bucket
	Tracked   bool
}

// GetUploadURL 为一个待上传文件签发 PUT URL
// 文件按扩展名分桶；Tracked 标记它是否该走大文件版本化路径
func (c *Client) GetUploadURL(ctx context.Context, owner, dataset, filename string, isPrivate bool) (*UploadTicket, error) {
	cls := Classify(filename)
	key := BuildKey(owner, dataset, filename, isPrivate)

	signed, err := c.backend.PresignPut(ctx, key, c.cfg.URLTTL)
	if err != nil {
		return nil, fmt.Errorf("presign put for %s: %w", filename, err)
	}

	return &UploadTicket{
		Key:       key,
		URL:       signed.URL,
		ExpiresAt: signed.ExpiresAt,
		Bucket:    cls.Bucket,
		Tracked:   cls.Tracked,
	}, nil
}

// GetDownloadURL 为一个存储 Key 签发 GET URL
// 私有 Key 必须携带令牌，否则 ErrAccessDenied；签出的 URL 会进缓存，
// 缓存 TTL 比 URL 本身的有效期短 CacheSafety，过期边界上绝不吐出死链
func (c *Client) GetDownloadURL(ctx context.Context, key types.StorageKey, token string) (string, error) {
	if key.Visibility().IsPrivate() && token == "" {
		return "", fmt.Errorf("%w: %s", ErrAccessDenied, key)
	}

	// 缓存键带上"是否有令牌"维度，匿名请求命中不了授权请求的条目
	cacheKey := cacheKeyFor(key, token != "")
	if url, ok := c.cache.Get(cacheKey); ok {
		return url, nil
	}

	signed, err := c.backend.PresignGet(ctx, key, c.cfg.URLTTL)
	if err != nil {
		return "", fmt.Errorf("presign get for %s: %w", key, err)
	}

	c.cache.Set(cacheKey, signed.URL, c.cfg.URLTTL-c.cfg.CacheSafety)
	return signed.URL, nil
}

func cacheKeyFor(key types.StorageKey, hasToken bool) string {
	if hasToken {
		return string(key) + "|token"
	}
	return string(key) + "|anon"
}

// DeletePrefix 删除前缀下的全部对象 (数据集删除的级联清理)
// 尽力而为：单个删除失败记下来继续删，最后返回第一个错误
func (c *Client) DeletePrefix(ctx context.Context, prefix types.StorageKey) error {
	keys, err := c.backend.ListKeys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s for deletion: %w", prefix, err)
	}
	var firstErr error
	for _, key := range keys {
		if err := c.backend.DeleteObject(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ValidateChecksum 流式读取对象，增量计算 SHA256 并与期望值比对
// 不匹配返回 false 而不是错误；只有 I/O 失败才报错
//
// 分块上传的对象在裸 Key 下没有实体，退回到按块号顺序串流所有分块
// (checksum 是对完整内容算的，块序即内容序)
func (c *Client) ValidateChecksum(ctx context.Context, key types.StorageKey, expected types.Checksum) (bool, error) {
	hasher := sha256.New()

	reader, err := c.backend.GetObject(ctx, key)
	switch {
	case err == nil:
		defer reader.Close()
		if _, err := io.Copy(hasher, reader); err != nil {
			return false, fmt.Errorf("stream %s for validation: %w", key, err)
		}
	case errors.Is(err, ErrObjectNotFound):
		if err := c.hashChunked(ctx, key, hasher); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("open %s for validation: %w", key, err)
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	return actual == string(expected), nil
}

// hashChunked 按块号顺序把 key 下的所有分块喂给 w
// 前缀下一个块都没有时返回 ErrObjectNotFound
func (c *Client) hashChunked(ctx context.Context, key types.StorageKey, w io.Writer) error {
	keys, err := c.backend.ListKeys(ctx, key)
	if err != nil {
		return fmt.Errorf("list chunks of %s: %w", key, err)
	}

	chunks := keys[:0]
	for _, k := range keys {
		if _, ok := parseChunkIndex(k); ok {
			chunks = append(chunks, k)
		}
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i] < chunks[j] })

	for _, k := range chunks {
		reader, err := c.backend.GetObject(ctx, k)
		if err != nil {
			return fmt.Errorf("open chunk %s for validation: %w", k, err)
		}
		_, err = io.Copy(w, reader)
		reader.Close()
		if err != nil {
			return fmt.Errorf("stream chunk %s for validation: %w", k, err)
		}
	}
	return nil
}
