package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 否则按优先级搜索
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.dv -> ~/.dv
		viper.AddConfigPath(".")
		viper.AddConfigPath(".dv")
		viper.AddConfigPath(filepath.Join(home, ".dv"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (DV_DATABASE_HOST 等)
	viper.SetEnvPrefix("DV")
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错 (可能全走环境变量)；格式错才是错
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("⚠️  No config file found, using defaults/env vars")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Println("🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 元数据库
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", filepath.Join(".dv", "meta.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// 版本仓库根目录
	wd, _ := os.Getwd()
	viper.SetDefault("repository.root", filepath.Join(wd, ".dv", "repos"))

	// 对象存储
	viper.SetDefault("storage.type", "s3")
	viper.SetDefault("storage.s3.region", "us-east-1")

	// 签名 URL 缓存
	viper.SetDefault("cache.type", "memory")

	// 分块传输调优
	viper.SetDefault("transfer.chunk_size", 8<<20)
	viper.SetDefault("transfer.concurrency", 4)
	viper.SetDefault("transfer.retry_attempts", 3)
	viper.SetDefault("transfer.retry_initial_ms", 100)
	viper.SetDefault("transfer.retry_max_ms", 2000)
}
