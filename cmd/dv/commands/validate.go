package commands

import (
	"fmt"
	"sort"

	"datavault/pkg/service"

	"github.com/spf13/cobra"
)

var validateContent bool

var validateCmd = &cobra.Command{
	Use:   "validate <title> <version>",
	Short: "Validate the integrity of a version",
	Long: `Check a version's manifest and report statistics. With --content the
stored objects are streamed and their checksums compared against the manifest.`,
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

		result, err := DV.Service.ValidateVersion(cmd.Context(), owner, ds.ID, args[1],
			service.ValidationOptions{CheckContent: validateContent})
		if err != nil {
			return err
		}

		if result.Valid {
			fmt.Printf("✅ %s@%s is valid\n", ds.Title, args[1])
		} else {
			fmt.Printf("❌ %s@%s has %d issue(s):\n", ds.Title, args[1], len(result.Issues))
			for _, issue := range result.Issues {
				fmt.Printf("   [%s] %s: %s\n", issue.Kind, issue.File, issue.Detail)
			}
		}

		fmt.Printf("\n%d files, %d bytes total, %d bytes average\n",
			result.FileCount, result.TotalSize, result.AvgSize)

		// 按扩展名排序输出，保证可复现
		exts := make([]string, 0, len(result.ByExtension))
		for ext := range result.ByExtension {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		for _, ext := range exts {
			fmt.Printf("   %-12s %d\n", ext, result.ByExtension[ext])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateContent, "content", false, "stream stored objects and verify checksums")
}
