package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/builder"
	"github.com/wippyai/clrmeta/config"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/indexcache"
	"github.com/wippyai/clrmeta/model"
)

var (
	configFlag   string
	logLevelFlag string
	cacheFlag    string
	noCacheFlag  bool

	cfg *config.Config
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "clrmeta",
	Short: "Inspect and rebuild CLI metadata and IL",
	Long: `clrmeta reads the metadata tables, heaps and method bodies of managed
images (PE files or bare BSJB metadata roots), disassembles IL and rebuilds
metadata from the loaded object graph.

Configuration is read from --config, or from the nearest clrmeta.toml found
walking up from the working directory.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "configuration file (default: nearest clrmeta.toml)")
	pf.StringVar(&logLevelFlag, "log-level", "", "override [log] level")
	pf.StringVar(&cacheFlag, "cache", "", "override [cache] path")
	pf.BoolVar(&noCacheFlag, "no-cache", false, "do not use the index cache")

	rootCmd.AddGroup(
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
		&cobra.Group{ID: "rebuild", Title: "Rebuilding:"},
		&cobra.Group{ID: "utility", Title: "Utilities:"},
	)
	rootCmd.AddCommand(tablesCmd, dumpCmd, disasmCmd, browseCmd, roundtripCmd, cacheCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if configFlag != "" {
		cfg, err = config.Load(configFlag)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if cacheFlag != "" {
		cfg.Cache.Path = cacheFlag
	}
	if noCacheFlag {
		cfg.Cache.Path = ""
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if log, err = cfg.NewLogger(); err != nil {
		return err
	}
	image.SetLogger(log.Named("image"))
	model.SetLogger(log.Named("model"))
	builder.SetLogger(log.Named("builder"))
	indexcache.SetLogger(log.Named("indexcache"))
	if cfg.Path != "" {
		log.Debug("configuration loaded", zap.String("path", cfg.Path))
	}
	return nil
}
