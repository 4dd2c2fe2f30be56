// Package s3 提供 blob.ObjectBackend 的 S3/MinIO 实现
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"datavault/pkg/blob"
	"datavault/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Config 用于初始化 Backend
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// Backend 实现了 blob.ObjectBackend 接口
type Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewBackend 初始化 S3 客户端 (适配 AWS SDK v2 最新规范)
func NewBackend(ctx context.Context, cfg Config) (*Backend, error) {
	// 1. 加载基础配置 (仅包含 Region 和 Credentials)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时，注入特定于 S3 的配置
	// 新版 SDK 推荐做法：使用 BaseEndpoint 而不是全局 Resolver
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		// 【关键】MinIO 必须强制使用 Path Style
		// 即: http://host:9000/bucket/key
		// 而不是: http://bucket.host:9000/key (Virtual Hosted Style)
		o.UsePathStyle = true
	})

	// 3. (可选) 自动创建 Bucket
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket})
	if err != nil {
		_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket})
		if err != nil {
			// 可能是并发创建或权限问题，生产环境建议手动管理 Bucket
			fmt.Printf("Warning: failed to ensure bucket exists: %v\n", err)
		}
	}

	return &Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

func (b *Backend) PresignPut(ctx context.Context, key types.StorageKey, ttl time.Duration) (blob.SignedURL, error) {
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(key)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return blob.SignedURL{}, fmt.Errorf("s3 presign put failed: %w", err)
	}
	return blob.SignedURL{URL: req.URL, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (b *Backend) PresignGet(ctx context.Context, key types.StorageKey, ttl time.Duration) (blob.SignedURL, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(key)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return blob.SignedURL{}, fmt.Errorf("s3 presign get failed: %w", err)
	}
	return blob.SignedURL{URL: req.URL, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (b *Backend) PutObject(ctx context.Context, key types.StorageKey, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(string(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}

func (b *Backend) GetObject(ctx context.Context, key types.StorageKey) (io.ReadCloser, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(key)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrObjectNotFound
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", blob.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return resp.Body, nil
}

// isNotFound 判定一次 S3 调用是否因键不存在而失败
// 不同实现报的类型不一样：AWS 报 NoSuchKey，部分兼容实现 (HeadObject 语义)
// 报 NotFound，这里统一按错误码匹配而不是解析错误文本
func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (b *Backend) ListKeys(ctx context.Context, prefix types.StorageKey) ([]types.StorageKey, error) {
	var keys []types.StorageKey

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(string(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, types.StorageKey(*obj.Key))
		}
	}
	return keys, nil
}

func (b *Backend) DeleteObject(ctx context.Context, key types.StorageKey) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(key)),
	})
	if err != nil {
		// 兼容性：某些 S3 实现对不存在的对象会报 NotFound，删除不存在视为成功
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}
