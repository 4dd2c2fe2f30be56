package commands

import (
	"fmt"
	"time"

	"datavault/pkg/service"

	"github.com/spf13/cobra"
)

var (
	createDesc    string
	createTags    []string
	createPrivate bool
)

var createCmd = &cobra.Command{
	Use:   "create <title> [files...]",
	Short: "Create a new dataset",
	Long:  `Create a dataset with an initial 1.0.0 version declaring the given files, and print a signed upload URL for each one.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := currentOwner()
		if err != nil {
			return err
		}
		title := args[0]

		// 声明文件：本地读一遍算出大小和 checksum
		var files []service.FileInput
		for _, path := range args[1:] {
			in, err := fileInputFromPath(path)
			if err != nil {
				return err
			}
			files = append(files, in)
		}

		start := time.Now()
		result, err := DV.Service.CreateDataset(cmd.Context(), owner, service.CreateDatasetInput{
			Title:       title,
			Description: createDesc,
			Tags:        createTags,
			IsPrivate:   createPrivate,
			Files:       files,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✅ Created dataset %s/%s at version %s (%s)\n",
			owner, title, result.Dataset.CurrentVersion, result.Dataset.ID)
		if len(result.UploadTickets) > 0 {
			fmt.Printf("   Upload the declared files within 1 hour:\n")
			printTickets(result.UploadTickets)
		}
		fmt.Printf("   Time: %s\n", time.Since(start))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createDesc, "description", "d", "", "dataset description")
	createCmd.Flags().StringSliceVarP(&createTags, "tag", "t", nil, "dataset tags (repeatable)")
	createCmd.Flags().BoolVar(&createPrivate, "private", false, "make the dataset private")
}
