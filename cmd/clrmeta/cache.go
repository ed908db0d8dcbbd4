package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wippyai/clrmeta/indexcache"
)

var cacheKeepFlag int

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "utility",
	Short:   "Manage the persisted reader index cache",
	Long: `The index cache stores the derived indexes of opened images (pointer
table maps, owner ranges, sorted key columns and field data sizes) in a
SQLite database, keyed by the hash of the metadata root. Set [cache] path in
clrmeta.toml or pass --cache to enable it.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openCache(cmd, false)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Entries(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "The index cache is empty.")
			return nil
		}
		fmt.Fprintf(out, "%-16s %10s %6s  %-16s %s\n", "key", "size", "hits", "last used", "location")
		for _, e := range entries {
			fmt.Fprintf(out, "%-16s %10s %6d  %-16s %s\n",
				e.Key, humanize.IBytes(uint64(e.Size)), e.Hits, humanize.Time(e.Accessed), e.Location)
		}
		return nil
	},
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm <file>...",
	Short: "Build and store the indexes of images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache(cmd, true)
		if err != nil {
			return err
		}
		store.Close()
		for _, path := range args {
			in, err := openInput(cmd.Context(), path)
			if err != nil {
				return err
			}
			state := "stored"
			if in.cached {
				state = "already cached"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", path, state, indexcache.Key(in.file.Metadata))
		}
		return nil
	},
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Drop the least recently used entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openCache(cmd, false)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Evict(cmd.Context(), cacheKeepFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Evicted %d entries, kept at most %d.\n", n, cacheKeepFlag)
		return nil
	},
}

func init() {
	cacheEvictCmd.Flags().IntVar(&cacheKeepFlag, "keep", 0, "number of entries to keep")
	cacheCmd.AddCommand(cacheListCmd, cacheWarmCmd, cacheEvictCmd)
}

// openCache opens the configured store. Unless create is set, a missing
// database file is an error.
func openCache(cmd *cobra.Command, create bool) (*indexcache.Store, error) {
	if cfg.Cache.Path == "" {
		return nil, fmt.Errorf("no index cache configured; set [cache] path or pass --cache")
	}
	if _, err := os.Stat(cfg.Cache.Path); err != nil && !create {
		return nil, fmt.Errorf("index cache %s: %w", cfg.Cache.Path, err)
	}
	return indexcache.Open(cmd.Context(), cfg.Cache.Path, cfg.CacheOptions())
}
