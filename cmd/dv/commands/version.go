package commands

import (
	"fmt"

	"datavault/pkg/service"
	"datavault/pkg/types"

	"github.com/spf13/cobra"
)

var versionMsg string

var versionCmd = &cobra.Command{
	Use:   "version <title> <semver> [files...]",
	Short: "Commit a new version of a dataset",
	Long: `Append a version to the dataset's history. Files passed on the command line
are declared as new or changed; everything else is carried forward unchanged
from the current head.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := currentOwner()
		if err != nil {
			return err
		}
		if versionMsg == "" {
			return fmt.Errorf("change description cannot be empty (use -m)")
		}
		title, label := args[0], args[1]

		ctx := cmd.Context()
		ds, err := resolveDataset(ctx, owner, title)
		if err != nil {
			return err
		}

		// 1. 从当前 head 继承文件集 (未变化的复用 StorageKey，零重传)
		carried := map[string]service.FileInput{}
		headFiles, err := DV.Repos.GetFileList(ctx, ds.Owner, ds.Title, ds.CurrentVersion)
		if err != nil {
			return err
		}
		for _, e := range headFiles {
			carried[e.Name] = service.FileInput{
				Name:        e.Name,
				Size:        e.Size,
				ContentType: e.ContentType,
				Checksum:    types.Checksum(e.Checksum),
				StorageKey:  types.StorageKey(e.StorageKey),
			}
		}

		// 2. 命令行上的文件覆盖同名条目 (它们是新内容，需要新凭证)
		for _, path := range args[2:] {
			in, err := fileInputFromPath(path)
			if err != nil {
				return err
			}
			carried[in.Name] = in
		}

		files := make([]service.FileInput, 0, len(carried))
		for _, f := range carried {
			files = append(files, f)
		}

		// 3. 提交
		result, err := DV.Service.CreateVersion(ctx, owner, ds.ID, service.CreateVersionInput{
			Version: label,
			Changes: versionMsg,
			Files:   files,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✅ [%s] %s -> %s\n", string(result.CommitID)[:8], ds.CurrentVersion, label)
		if len(result.UploadTickets) > 0 {
			fmt.Printf("   Upload the changed files within 1 hour:\n")
			printTickets(result.UploadTickets)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionMsg, "message", "m", "", "change description")
}
