package flags

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/Vasu1712/scenyx-chat/internal/storage/memory"
	"github.com/Vasu1712/scenyx-chat/internal/storage/postgres"
)

// PostgresFlags contains the set of flags needed to connect to a postgres database.
type PostgresFlags struct {
	DSN string
}

func NewPostgresDatabaseFlags() *PostgresFlags {
	return &PostgresFlags{DSN: os.Getenv("SCENYX_DATABASE_DSN")}
}

func (f *PostgresFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.DSN, "database-dsn", f.DSN, "Database DSN for connecting to Postgres (default in-memory store)")
}

func (f *PostgresFlags) GetPostgres() (*postgres.Store, error) {
	s, err := postgres.Open(f.DSN)
	if err != nil {
		log.WithError(err).Error("could not connect to db")
		return nil, err
	}
	return s, nil
}

// GetStore opens Postgres, or an in-memory store when no DSN is configured.
func (f *PostgresFlags) GetStore() (storage.Store, error) {
	if f.DSN == "" {
		log.Warn("no database DSN configured, using the in-memory store")
		return memory.NewStore(), nil
	}
	return f.GetPostgres()
}
