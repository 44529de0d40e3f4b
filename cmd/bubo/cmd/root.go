/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"
	"github.com/ssargent/bubo/pkg/config"
	"github.com/ssargent/bubo/pkg/di"
	"github.com/ssargent/bubo/pkg/store"
)

// skipStore marks commands that run without opening the store.
const skipStore = "bubo/skip-store"

type contextKey string

const (
	storeKey  contextKey = "store"
	configKey contextKey = "config"
)

var container *di.Container

// SetContainer injects the dependency container used by serve.
func SetContainer(c *di.Container) {
	container = c
}

func init() {
	// registers -log on the standard flag set
	log.AddFlags()
}

// NewRootCmd builds the bubo command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bubo",
		Short: "bubo - durable store of distinct attribute sets",
		Long: `bubo keeps the distinct tag=value attribute sets it is given.

Attribute sets are canonicalized (ignored tags dropped, attributes sorted by
tag), interned into compact records and kept in an in-memory hash set backed
by an append-only operation log.`,
		SilenceUsage:      true,
		PersistentPreRunE: openStore,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default "+config.GetDefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory for the store (overrides the config file)")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(
		newInitCmd(),
		newAddCmd(),
		newContainsCmd(),
		newRemoveCmd(),
		newListCmd(),
		newStatsCmd(),
		newHashCmd(),
		newExportCmd(),
		newImportCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := run(NewRootCmd()); err != nil {
		os.Exit(1)
	}
}

// run executes root and closes the store the command opened, even when the
// command failed.
func run(root *cobra.Command) error {
	cmd, err := root.ExecuteC()
	if cmd != nil && cmd.Context() != nil {
		if cerr := closeStore(cmd); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// loadConfig reads the config file named by --config, falling back to the
// default path and then to built-in defaults. --data-dir wins over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	explicit := configPath != ""
	if !explicit {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if config.ConfigExists(configPath) {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return nil, configPath, err
		}
	} else if explicit && cmd.Annotations[skipStore] == "" {
		return nil, configPath, errors.Newf("config file does not exist: %s", configPath)
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, configPath, errors.Wrapf(err, "invalid config %s", configPath)
	}
	return cfg, configPath, nil
}

func openStore(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Logging.Quiet {
		log.SetOutput(io.Discard)
	}
	ctx := context.WithValue(cmd.Context(), configKey, cfg)
	if cmd.Annotations[skipStore] != "" {
		cmd.SetContext(ctx)
		return nil
	}

	sc, err := cfg.StoreConfig()
	if err != nil {
		return err
	}
	attrStore, err := store.NewAttrStore(sc)
	if err != nil {
		return errors.Wrap(err, "failed to create store")
	}
	recovery, err := attrStore.Open()
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	if recovery.BytesTruncated > 0 {
		cmd.PrintErrf("Recovered from corruption: %d bytes truncated from the log\n", recovery.BytesTruncated)
	}
	cmd.SetContext(context.WithValue(ctx, storeKey, attrStore))
	return nil
}

func closeStore(cmd *cobra.Command) error {
	if s, ok := cmd.Context().Value(storeKey).(*store.AttrStore); ok {
		return s.Close()
	}
	return nil
}

func storeFrom(cmd *cobra.Command) (*store.AttrStore, error) {
	s, ok := cmd.Context().Value(storeKey).(*store.AttrStore)
	if !ok {
		return nil, errors.New("store not found in context")
	}
	return s, nil
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}
