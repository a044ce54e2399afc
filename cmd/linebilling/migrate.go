package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/linebilling/migrations"
	"github.com/dmitrymomot/linebilling/pkg/pg"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := load[migrateConfig](envFile)
		if err != nil {
			return err
		}
		log := newLogger(cfg.App)
		ctx := cmd.Context()

		pool, err := pg.Connect(ctx, cfg.PG)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pg.Migrate(ctx, pool, migrations.FS, cfg.PG, log); err != nil {
			return err
		}
		log.InfoContext(ctx, "migrations applied")
		return nil
	},
}
