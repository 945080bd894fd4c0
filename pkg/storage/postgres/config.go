package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the execution store.
type Config struct {
	DSN string // e.g. "postgres://runcode:secret@db:5432/runcode?sslmode=require"

	MaxConns        int32         // default 10
	MinConns        int32         // default 1
	MaxConnLifetime time.Duration // default 5m

	// ApplicationName is reported to the server in pg_stat_activity.
	// Defaults to "runcode"; a DSN that sets application_name wins.
	ApplicationName string

	MigrateOnStart bool

	// Retention is the age past which Prune deletes records. Zero keeps
	// records forever.
	Retention time.Duration
}

// poolConfig parses the DSN and applies the pool settings, filling in
// defaults for zero fields.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConns, 10)
	pc.MinConns = orDefault(c.MinConns, 1)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, 5*time.Minute)

	params := pc.ConnConfig.RuntimeParams
	if _, set := params["application_name"]; !set {
		params["application_name"] = orDefault(c.ApplicationName, "runcode")
	}
	return pc, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
