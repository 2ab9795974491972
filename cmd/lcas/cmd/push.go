package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/lcas"
)

var pushCmd = &cobra.Command{
	Use:   "push <hash> <ref>",
	Short: "Push a tree to a remote registry",
	Long:  "Push a cached directory and the content of every file in it to an OCI registry.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	hash, ref := args[0], args[1]

	return withStore(func(s *lcas.Store) error {
		fmt.Fprintf(os.Stderr, "Pushing %s to %s...\n", hash, ref)

		if err := s.Push(cmd.Context(), ref, hash); err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Done. Root: %s\n", hash)
		return nil
	})
}
