package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/cache"
	"github.com/jackzampolin/folio/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the result cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		store, err := cache.Open(cfg.Cache.Path, cache.Options{
			TTL:    cfg.Cache.TTL,
			Logger: newLogger(),
		})
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
}
