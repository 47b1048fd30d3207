package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsParse(t *testing.T) {
	source, err := embeddedSource()
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, _, err := source.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()

	down, _, err := source.ReadDown(first)
	require.NoError(t, err)
	defer down.Close()

	_, err = source.Next(first)
	assert.Error(t, err, "the ledger schema ships as a single version")
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	status, err := RunMigrations(nil)
	assert.Error(t, err)
	assert.Zero(t, status)
}
