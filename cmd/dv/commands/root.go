package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"datavault/pkg/app"
	"datavault/pkg/config"
	"datavault/pkg/meta"
	"datavault/pkg/service"
	"datavault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	DV *app.App
)

var rootCmd = &cobra.Command{
	Use:   "dv",
	Short: "DataVault: dataset version control",
	// 【关键】PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		DV, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize datavault: %w", err)
		}

		// 启动清扫：把上次半途而废的操作收拾干净
		if n, err := DV.Service.ReconcileIntents(cmd.Context(), 10*time.Minute); err == nil && n > 0 {
			fmt.Printf("🧹 Reconciled %d stale operation(s)\n", n)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dv/config.yaml)")

	// user.name 既可以在 yaml 里写，也可以用 --owner 覆盖
	rootCmd.PersistentFlags().String("owner", "", "acting user name")
	if err := viper.BindPFlag("user.name", rootCmd.PersistentFlags().Lookup("owner")); err != nil {
		fmt.Println("Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

// currentOwner 取当前操作者身份
func currentOwner() (string, error) {
	owner := viper.GetString("user.name")
	if owner == "" {
		return "", fmt.Errorf("owner not set (use --owner or set user.name in config)")
	}
	return owner, nil
}

// resolveDataset 把 CLI 里的数据集标题解析成元数据记录
func resolveDataset(ctx context.Context, owner, title string) (*meta.Dataset, error) {
	ds, err := DV.Meta.FindDataset(ctx, owner, title)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", title, err)
	}
	return ds, nil
}

// fileInputFromPath 读本地文件，算出声明所需的大小和 checksum
func fileInputFromPath(path string) (service.FileInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return service.FileInput{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return service.FileInput{}, err
	}

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return service.FileInput{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return service.FileInput{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: contentType,
		Checksum:    types.Checksum(hex.EncodeToString(hasher.Sum(nil))),
	}, nil
}

// printTickets 统一打印上传凭证
func printTickets(tickets []service.FileUploadTicket) {
	for _, t := range tickets {
		tracked := ""
		if t.Tracked {
			tracked = " (large-file tracked)"
		}
		fmt.Printf("   ⬆️  %s%s\n       %s\n", t.Name, tracked, t.UploadURL)
	}
}
