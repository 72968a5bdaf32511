package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/identity"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the enrichment cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Entries: %d\n", st.Total)
		fmt.Printf("Expired: %d\n", st.Expired)
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d expired entries\n", n)
		return nil
	},
}

var cacheInvalidateKey string

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Evict one cache entry by identity key",
	Long:  `Evicts the entry for a lead identity key ("domain|first last"), forcing a fresh provider lookup on the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Invalidate(ctx, identity.Key(cacheInvalidateKey)); err != nil {
			return err
		}
		fmt.Printf("Invalidated %s\n", cacheInvalidateKey)
		return nil
	},
}

func init() {
	cacheInvalidateCmd.Flags().StringVar(&cacheInvalidateKey, "key", "", "identity key to evict (required)")
	_ = cacheInvalidateCmd.MarkFlagRequired("key")

	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd, cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}
