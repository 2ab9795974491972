package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/lcas"
)

var hashCmd = &cobra.Command{
	Use:   "hash <path>",
	Short: "Print the hash of a file or directory",
	Long:  "Compute the content hash of a file or directory without touching the cache.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)
}

func runHash(cmd *cobra.Command, args []string) error {
	path := args[0]

	return withStore(func(s *lcas.Store) error {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}

		if !fi.IsDir() {
			hash, err := s.HashOf(path)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		}

		entries, err := s.HashDir(cmd.Context(), path)
		if err != nil {
			return err
		}
		fmt.Println(s.HashEntries(entries))
		return nil
	})
}
