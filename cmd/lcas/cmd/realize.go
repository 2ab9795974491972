package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/lcas"
)

var realizeCmd = &cobra.Command{
	Use:   "realize <hash> <dest>",
	Short: "Materialize a cached object as a link",
	Long:  "Hard-link a cached file, or symlink a cached directory, at dest. dest must not exist.",
	Args:  cobra.ExactArgs(2),
	RunE:  runRealize,
}

func init() {
	rootCmd.AddCommand(realizeCmd)
}

func runRealize(cmd *cobra.Command, args []string) error {
	hash, dest := args[0], args[1]

	return withStore(func(s *lcas.Store) error {
		if _, err := s.Realize(cmd.Context(), dest, hash); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Realized %s at %s\n", hash, dest)
		return nil
	})
}
