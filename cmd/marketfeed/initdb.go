package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arbiq/marketfeed/internal/config"
	"github.com/arbiq/marketfeed/internal/store/postgres"
)

var dropFirst bool

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the analytics store schema",
	RunE:  runInitdb,
}

func init() {
	initdbCmd.Flags().BoolVar(&dropFirst, "drop", false, "drop existing tables before creating them")
}

func runInitdb(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := postgres.Open(cfg.Store.DSN, cfg.Store.MaxOpenConn)
	if err != nil {
		return fmt.Errorf("opening analytics store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if dropFirst {
		if err := postgres.DropSchema(ctx, db); err != nil {
			return fmt.Errorf("dropping schema: %w", err)
		}
	}
	if err := postgres.InitSchema(ctx, db); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	fmt.Println("analytics store schema ready")
	return nil
}
