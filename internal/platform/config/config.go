// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and CLI flag parsing.

It leverages 'spf13/cobra' to map process arguments into a strongly-typed
Go struct, since the service is invoked as a single long-running process
rather than configured purely through the environment.

Usage:

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once parsed, configuration is read-only.
  - DI-Friendly: Passed to core components (store, migrations) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"fmt"

	"github.com/spf13/cobra"
)

// # Configuration Schema

// Config holds all runtime configuration for the Collectify API server.
type Config struct {

	// Database is the filesystem path to the single SQLite database file.
	Database string

	// Address is the host:port the HTTP server binds to.
	Address string

	// Crawl, when set, makes the background workers fall back to stale
	// entities once both queues have drained, instead of idling.
	Crawl bool

	// Environment controls CORS strictness. Defaults to "production".
	Environment string

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string
}

// # Configuration Loading

// Parse builds a [Config] from CLI arguments using a throwaway cobra command,
// so that flag parsing, usage text, and validation all share one definition.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:           "collectify",
		Short:         "Bandcamp collection crawler and recommendation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cfg.Database == "" {
				return fmt.Errorf("config: --database is required")
			}
			if cfg.Address == "" {
				return fmt.Errorf("config: --address is required")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Database, "database", "", "path to the SQLite database file (required)")
	cmd.Flags().StringVar(&cfg.Address, "address", "", "host:port to bind the HTTP server to (required)")
	cmd.Flags().BoolVar(&cfg.Crawl, "crawl", false, "fall back to stale entities once queues drain")
	cmd.Flags().StringVar(&cfg.Environment, "environment", "production", "deployment environment (development|production)")
	cmd.Flags().StringVar(&cfg.MigrationPath, "migrations", "./migrations", "path to the SQL migrations directory")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
