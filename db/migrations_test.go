package db

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestMigrationsPairUpAndDown(t *testing.T) {
	source, err := iofs.New(Migrations, MigrationsDir)
	require.NoError(t, err)
	defer source.Close()

	version, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var schema strings.Builder
	for {
		up, _, err := source.ReadUp(version)
		require.NoError(t, err, "missing up migration for version %d", version)
		schema.WriteString(readAll(t, up))

		down, _, err := source.ReadDown(version)
		require.NoError(t, err, "missing down migration for version %d", version)
		assert.NotEmpty(t, strings.TrimSpace(readAll(t, down)))

		next, err := source.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		version = next
	}

	for _, table := range []string{"users", "connections", "events", "event_registrations", "job_postings", "job_applications", "audit_logs"} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
