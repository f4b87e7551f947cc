package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"emlink/internal/linkcache"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every entry of the link cache",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func runClean(cmd *cobra.Command, _ []string) error {
	dir, err := cmd.Flags().GetString("cache")
	if err != nil {
		return err
	}
	cache, err := linkcache.Open(dir)
	if err != nil {
		return err
	}
	if err := cache.DropAll(); err != nil {
		return fmt.Errorf("failed to clean %q: %w", cache.Dir(), err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed cached links in %s\n", cache.Dir())
	return err
}

func init() {
	cleanCmd.Flags().String("cache", "", "link cache directory (default: user cache dir)")
}
