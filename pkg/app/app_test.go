package app

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitObjectBackend_Memory(t *testing.T) {
	viper.Reset()
	viper.Set("storage.type", "memory")

	backend, err := initObjectBackend(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, backend)
}

func TestInitObjectBackend_S3_MissingBucket(t *testing.T) {
	viper.Reset()
	viper.Set("storage.type", "s3")
	// 故意不设置 bucket

	backend, err := initObjectBackend(context.Background())
	assert.Error(t, err)
	assert.Nil(t, backend)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestInitObjectBackend_UnknownType(t *testing.T) {
	viper.Reset()
	viper.Set("storage.type", "ftp") // 不支持的类型

	backend, err := initObjectBackend(context.Background())
	assert.Error(t, err)
	assert.Nil(t, backend)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestInitURLCache_DefaultsToInProcess(t *testing.T) {
	viper.Reset()
	viper.Set("cache.type", "memory")

	cache, err := initURLCache()
	require.NoError(t, err)
	assert.Nil(t, cache, "nil 表示让 Client 用自带的进程内缓存")
}

func TestInitURLCache_Redis_MissingURL(t *testing.T) {
	viper.Reset()
	viper.Set("cache.type", "redis")

	_, err := initURLCache()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis url is required")
}

func TestInitMetaDB_UnknownDriver(t *testing.T) {
	viper.Reset()
	viper.Set("database.driver", "oracle")

	_, err := initMetaDB(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
