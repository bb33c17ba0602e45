package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vasu1712/scenyx-chat/internal/flags"
)

func NewMigrateCommand() *cobra.Command {
	f := flags.NewPostgresDatabaseFlags()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates or initializes the PostgreSQL database to the latest schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.DSN == "" {
				return errors.New("--database-dsn or SCENYX_DATABASE_DSN is required")
			}
			store, err := f.GetPostgres()
			if err != nil {
				return errors.WithMessage(err, "could not connect to db")
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return errors.WithMessage(err, "could not migrate db")
			}
			log.Info("schema is up to date")
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
