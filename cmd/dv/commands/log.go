package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <title>",
	Short: "Show version history",
	Long:  `Display the dataset's version history from the current head back to the root version.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := currentOwner()
		if err != nil {
			return err
		}
		ds, err := resolveDataset(cmd.Context(), owner, args[0])
		if err != nil {
			return err
		}

		history, err := DV.Service.ListVersions(cmd.Context(), owner, ds.ID)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("No versions yet.")
			return nil
		}

		// 仿 git log 格式
		const (
			colorYellow = "\033[33m"
			colorReset  = "\033[0m"
		)
		for _, v := range history {
			fmt.Printf("%sversion %s%s (%s)\n", colorYellow, v.Version, colorReset, v.CommitID)
			fmt.Printf("Date:   %s\n", v.CreatedAt.Format(time.RFC1123))
			fmt.Printf("\n    %s\n\n", v.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
}
