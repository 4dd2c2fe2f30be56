package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rmForce bool

var rmCmd = &cobra.Command{
	Use:   "rm <title>",
	Short: "Delete a dataset",
	Long:  `Delete a dataset's metadata, its full version history, and all stored objects. This cannot be undone.`,
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

		if !rmForce {
			fmt.Printf("⚠️  This deletes %s/%s and its entire version history permanently. Type the title to confirm: ",
				owner, ds.Title)
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			if strings.TrimSpace(line) != ds.Title {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := DV.Service.DeleteDataset(cmd.Context(), owner, ds.ID); err != nil {
			return err
		}
		fmt.Printf("🗑️  Deleted %s/%s\n", owner, ds.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)

	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "skip the confirmation prompt")
}
