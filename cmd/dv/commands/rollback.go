package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <title> <version>",
	Short: "Restore a historical version",
	Long: `Append a new version whose content is identical to the target version.
History is never rewritten: the rolled-back versions stay in the log.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := currentOwner()
		if err != nil {
			return err
		}
		ds, err := resolveDataset(cmd.Context(), owner, args[0])
		if err != nil {
			return err
		}

		result, err := DV.Service.RollbackVersion(cmd.Context(), owner, ds.ID, args[1])
		if err != nil {
			return err
		}

		// 回滚复用已有对象，不需要任何上传
		fmt.Printf("⏪ Rolled back to %s: new head is %s (%s)\n",
			args[1], result.Version, string(result.CommitID)[:8])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}
