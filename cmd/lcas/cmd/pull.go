package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/lcas"
)

var pullCmd = &cobra.Command{
	Use:   "pull <ref> [dest]",
	Short: "Pull a tree from a remote registry",
	Long:  "Pull a tree from an OCI registry into the cache and print its hash. When dest is given the tree is realized there.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	ref := args[0]

	return withStore(func(s *lcas.Store) error {
		fmt.Fprintf(os.Stderr, "Pulling %s...\n", ref)

		hash, err := s.Pull(cmd.Context(), ref)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}

		if len(args) > 1 {
			if _, err := s.Realize(cmd.Context(), args[1], hash); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Realized at %s\n", args[1])
		}

		fmt.Println(hash)
		return nil
	})
}
