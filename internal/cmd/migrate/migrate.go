package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registrymigrate "github.com/gaspermerela/journal-service-sub002/internal/registry/migrate"

	// Import the store plugin to trigger init() registration of its migrator.
	_ "github.com/gaspermerela/journal-service-sub002/internal/store/postgres"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("JOURNAL_DB_URL"),
				Usage:    "PostgreSQL connection URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-schema",
				Sources: cli.EnvVars("JOURNAL_DB_SCHEMA"),
				Usage:   "PostgreSQL schema to use/create",
				Value:   "journal",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.SchemaName = cmd.String("db-schema")
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
