package cmd

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/aweris/lcas"
)

var filterCmd = &cobra.Command{
	Use:   "filter <hash> <dest>",
	Short: "Realize a filtered view of a cached directory",
	Long: `Realize a cached directory at dest without the entries matching any
--exclude pattern. Patterns use path.Match syntax and are tried against both
the slash-separated path and the base name of every entry.`,
	Args: cobra.ExactArgs(2),
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().StringSlice("exclude", nil, "glob of entries to drop (repeatable)")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(cmd *cobra.Command, args []string) error {
	hash, dest := args[0], args[1]
	patterns, _ := cmd.Flags().GetStringSlice("exclude")

	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}

	return withStore(func(s *lcas.Store) error {
		entries, err := s.Entries(cmd.Context(), hash)
		if err != nil {
			return err
		}

		filtered := s.Filter(entries, func(p string, _ lcas.Entry) bool {
			return !excluded(p, patterns)
		})

		view, err := s.RealizeVirtualDirectory(cmd.Context(), dest, filtered)
		if err != nil {
			return err
		}
		fmt.Println(view)
		return nil
	})
}

func excluded(p string, patterns []string) bool {
	base := path.Base(p)
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
