package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/config"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/database"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	_ "github.com/RaufunNazin/bnetdiag/migrations"
)

const defaultConfigPath = "configs/config.yaml"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "netdiag",
		Short:         "Fibre network topology service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default $NETDIAG_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newUserCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// resolveConfigPath prefers the flag, then NETDIAG_CONFIG.
func (o *rootOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv("NETDIAG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func (o *rootOptions) load() (*config.Config, error) {
	path := o.resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// cliLogger writes human-readable logs for one-shot commands.
func cliLogger(cfg *config.Config) *logging.Logger {
	lc := cfg.Logging
	lc.Format = "text"
	return logging.NewWithWriter(os.Stderr, lc, version)
}
