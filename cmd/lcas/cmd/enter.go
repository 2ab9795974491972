package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/lcas"
)

var enterCmd = &cobra.Command{
	Use:   "enter <path|->",
	Short: "Add a file or directory to the cache",
	Long:  "Enter a file or directory into the cache and print its hash. Use - to read a file from stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnter,
}

func init() {
	rootCmd.AddCommand(enterCmd)
}

func runEnter(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := cmd.Context()

	return withStore(func(s *lcas.Store) error {
		var hash lcas.Hash
		var err error

		if path == "-" {
			hash, err = s.EnterStream(ctx, os.Stdin)
		} else {
			var fi os.FileInfo
			if fi, err = os.Stat(path); err != nil {
				return err
			}
			if fi.IsDir() {
				hash, _, err = s.EnterDirectory(ctx, path)
			} else {
				hash, err = s.EnterFile(ctx, path)
			}
		}
		if err != nil {
			return err
		}

		fmt.Println(hash)
		return nil
	})
}
