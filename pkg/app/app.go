// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"datavault/pkg/blob"
	"datavault/pkg/blob/cache"
	"datavault/pkg/blob/memory"
	"datavault/pkg/blob/s3"
	"datavault/pkg/meta"
	"datavault/pkg/repository"
	"datavault/pkg/repository/fsrepo"
	"datavault/pkg/service"

	"github.com/spf13/viper"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有"单例"服务
type App struct {
	Service *service.Service
	Repos   *repository.Manager
	Store   *blob.Client
	Meta    *meta.Repository
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	// 1. 版本仓库后端 (文件系统)
	repoRoot := viper.GetString("repository.root")
	if repoRoot == "" {
		return nil, fmt.Errorf("repository root not set")
	}
	repoBackend, err := fsrepo.NewBackend(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to init repository backend: %w", err)
	}

	// 2. 对象存储后端
	objBackend, err := initObjectBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// 3. 签名 URL 缓存 (默认进程内；配了 redis 才走共享缓存)
	urlCache, err := initURLCache()
	if err != nil {
		return nil, fmt.Errorf("failed to init url cache: %w", err)
	}

	store := blob.NewClient(objBackend, urlCache, transferConfig())

	// 4. 元数据库
	db, err := initMetaDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init metadata store: %w", err)
	}
	metaRepo := meta.NewRepository(db)

	repos := repository.NewManager(repoBackend)
	return &App{
		Service: service.New(repos, store, metaRepo),
		Repos:   repos,
		Store:   store,
		Meta:    metaRepo,
	}, nil
}

// initObjectBackend 根据配置挑选对象存储实现
func initObjectBackend(ctx context.Context) (blob.ObjectBackend, error) {
	storageType := viper.GetString("storage.type")

	switch storageType {
	case "s3":
		bucket := viper.GetString("storage.s3.bucket")
		if bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required (storage.s3.bucket)")
		}
		return s3.NewBackend(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		})
	case "memory":
		// 内存后端：本地试玩和测试用，进程退出数据即丢
		return memory.NewBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// initURLCache 返回 nil 表示用 Client 自带的进程内缓存
func initURLCache() (blob.URLCache, error) {
	if viper.GetString("cache.type") != "redis" {
		return nil, nil
	}
	redisURL := viper.GetString("cache.redis_url")
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required (cache.redis_url)")
	}
	return cache.NewURLCache(cache.Config{RedisURL: redisURL})
}

func transferConfig() blob.Config {
	cfg := blob.DefaultConfig()
	if v := viper.GetInt64("transfer.chunk_size"); v > 0 {
		cfg.ChunkSize = v
	}
	if v := viper.GetInt("transfer.concurrency"); v > 0 {
		cfg.MaxConcurrency = v
	}
	if v := viper.GetInt("transfer.retry_attempts"); v > 0 {
		cfg.Retry.MaxAttempts = v
	}
	if v := viper.GetInt("transfer.retry_initial_ms"); v > 0 {
		cfg.Retry.InitialDelay = time.Duration(v) * time.Millisecond
	}
	if v := viper.GetInt("transfer.retry_max_ms"); v > 0 {
		cfg.Retry.MaxDelay = time.Duration(v) * time.Millisecond
	}
	return cfg
}

// initMetaDB 支持两种驱动：
// sqlite 面向单机 CLI，postgres 面向共享部署
func initMetaDB(ctx context.Context) (*meta.DB, error) {
	switch driver := viper.GetString("database.driver"); driver {
	case "postgres":
		return meta.NewDB(ctx, meta.Config{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.dbname"),
			SSLMode:  viper.GetString("database.sslmode"),
		})
	case "sqlite":
		path := viper.GetString("database.path")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		db := meta.NewWithConn(conn)
		if err := db.AutoMigrate(&meta.Dataset{}, &meta.FileRecord{}, &meta.VersionModel{}, &meta.Intent{}); err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}
