package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var diffShowURLs bool

var diffCmd = &cobra.Command{
	Use:   "diff <title> <v1> <v2>",
	Short: "Compare two versions",
	Long:  `Show the file-level difference between two versions, with a signed download URL for every added or changed file.`,
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := currentOwner()
		if err != nil {
			return err
		}
		ds, err := resolveDataset(cmd.Context(), owner, args[0])
		if err != nil {
			return err
		}

		result, err := DV.Service.CompareVersions(cmd.Context(), owner, ds.ID, args[1], args[2])
		if err != nil {
			return err
		}
		diff := result.Diff

		fmt.Printf("📊 %s: %s -> %s\n\n", ds.Title, diff.From, diff.To)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		for _, e := range diff.Added {
			fmt.Fprintf(tw, "A\t%s\t+%d bytes\n", e.Name, e.Size)
		}
		for _, c := range diff.Modified {
			fmt.Fprintf(tw, "M\t%s\t%+d bytes\n", c.Name, c.SizeDelta())
		}
		for _, e := range diff.Removed {
			fmt.Fprintf(tw, "D\t%s\t-%d bytes\n", e.Name, e.Size)
		}
		tw.Flush()

		fmt.Printf("\n%d added, %d modified, %d removed, %d unchanged (net %+d bytes)\n",
			diff.Stats.AddedCount, diff.Stats.ModifiedCount,
			diff.Stats.RemovedCount, diff.Stats.UnchangedCount,
			diff.Stats.NetSizeImpact)

		if len(diff.MetaChanges) > 0 {
			fmt.Println("\nMetadata changes:")
			for key, change := range diff.MetaChanges {
				fmt.Printf("   %s: %q -> %q\n", key, change.Old, change.New)
			}
		}

		if diffShowURLs && len(result.DownloadURLs) > 0 {
			fmt.Println("\nDownload URLs (valid 1 hour):")
			for name, url := range result.DownloadURLs {
				fmt.Printf("   ⬇️  %s\n       %s\n", name, url)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().BoolVar(&diffShowURLs, "urls", false, "print signed download URLs for changed files")
}
