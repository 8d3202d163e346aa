package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Sternrassler/merchant-catalog-export/internal/config"
	"github.com/Sternrassler/merchant-catalog-export/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newCacheCommand() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:         "cache",
		Short:       "Manage the listing page cache",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	cacheCmd.AddCommand(newCachePurgeCommand())
	return cacheCmd
}

func newCachePurgeCommand() *cobra.Command {
	var redisURL string
	var class string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached listing pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(redisURL)
			if target == "" {
				target = strings.TrimSpace(os.Getenv(config.EnvRedisURL))
			}
			if target == "" {
				target = config.Default().Cache.RedisURL
			}

			opts, err := redis.ParseURL(target)
			if err != nil {
				return fmt.Errorf("parse redis url: %w", err)
			}
			rdb := redis.NewClient(opts)
			defer rdb.Close()

			endpoint := ""
			if class = strings.TrimSpace(class); class != "" {
				endpoint = "class/" + class
			}

			removed, err := cache.NewManager(rdb).Purge(cmd.Context(), endpoint)
			if err != nil {
				return fmt.Errorf("purge cache: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached pages\n", removed)
			return nil
		},
	}

	cmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL (defaults to $"+config.EnvRedisURL+" or the built-in default)")
	cmd.Flags().StringVar(&class, "class", "", "Only purge pages of this listing class")
	return cmd
}
