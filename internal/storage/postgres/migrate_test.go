package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pgx5://u:p@host:5432/radar?sslmode=disable", MigrationURL("postgres://u:p@host:5432/radar?sslmode=disable"))
	require.Equal(t, "pgx5://host/radar", MigrationURL("postgresql://host/radar"))
	require.Equal(t, "pgx5://already", MigrationURL("pgx5://already"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	require.Positive(t, ups)
	require.Equal(t, ups, downs)

	schema, err := fs.ReadFile(migrationsFS, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(schema), "UNIQUE (source, source_id)")
	require.Contains(t, string(schema), "slug        TEXT NOT NULL UNIQUE")
}
