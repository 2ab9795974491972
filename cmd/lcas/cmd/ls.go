package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/lcas"
)

var lsCmd = &cobra.Command{
	Use:   "ls <hash>",
	Short: "List the tree of a cached directory",
	Long:  "List every entry below a directory previously entered into the cache.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

func init() {
	lsCmd.Flags().Bool("dirs", false, "include directory entries")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	showDirs, _ := cmd.Flags().GetBool("dirs")

	return withStore(func(s *lcas.Store) error {
		entries, err := s.Entries(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("(no entries)")
			return nil
		}

		entries.Walk(func(path string, e lcas.Entry) bool {
			if e.IsFile() || showDirs {
				fmt.Printf("%s\t%s\t%s\n", e.Hash, e.Kind, path)
			}
			return true
		})
		return nil
	})
}
