package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var forkAt string

var forkCmd = &cobra.Command{
	Use:   "fork <source-title> <new-title>",
	Short: "Fork a dataset into a new one",
	Long: `Create an independent dataset seeded from one version of the source.
The fork starts its own history at 1.0.0; objects are shared, not copied.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := currentOwner()
		if err != nil {
			return err
		}
		src, err := resolveDataset(cmd.Context(), owner, args[0])
		if err != nil {
			return err
		}

		at := forkAt
		if at == "" {
			at = src.CurrentVersion
		}

		info, err := DV.Service.ForkDataset(cmd.Context(), owner, src.ID, at, args[1])
		if err != nil {
			return err
		}

		fmt.Printf("🍴 Forked %s@%s -> %s/%s at version %s (%s)\n",
			src.Title, at, owner, info.Title, info.CurrentVersion, info.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forkCmd)

	forkCmd.Flags().StringVar(&forkAt, "at", "", "source version to fork from (default: current head)")
}
