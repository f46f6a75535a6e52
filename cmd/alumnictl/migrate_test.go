package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-network-api/pkg/config"
)

type migratorStub struct {
	version uint
	dirty   bool
	upErr   error
	ups     int
	downs   []int
	closed  bool
}

func (m *migratorStub) Up() error {
	m.ups++
	return m.upErr
}

func (m *migratorStub) Down(steps int) error {
	m.downs = append(m.downs, steps)
	return nil
}

func (m *migratorStub) Version() (uint, bool, error) {
	return m.version, m.dirty, nil
}

func (m *migratorStub) Close() error {
	m.closed = true
	return nil
}

func runMigrate(t *testing.T, stub *migratorStub, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandFrom(&rootOptions{
		loadConfig: testConfig,
		openMigrator: func(config.DatabaseConfig, *zap.Logger) (schemaMigrator, error) {
			return stub, nil
		},
	})
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"migrate"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestMigrateVersionPrintsDirtyState(t *testing.T) {
	stub := &migratorStub{version: 4, dirty: true}
	out, err := runMigrate(t, stub, "version")
	require.NoError(t, err)
	assert.Equal(t, "version=4 dirty=true\n", out)
	assert.True(t, stub.closed)
}

func TestMigrateUpAndDown(t *testing.T) {
	stub := &migratorStub{}
	_, err := runMigrate(t, stub, "up")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.ups)

	_, err = runMigrate(t, stub, "down", "--steps", "2")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, stub.downs)

	stub.upErr = errors.New("database is in dirty state at version 4")
	_, err = runMigrate(t, stub, "up")
	assert.ErrorContains(t, err, "dirty state")
}

func TestMigrateOpenFailure(t *testing.T) {
	cmd := newRootCommandFrom(&rootOptions{
		loadConfig: testConfig,
		openMigrator: func(config.DatabaseConfig, *zap.Logger) (schemaMigrator, error) {
			return nil, errors.New("ping migration connection: connection refused")
		},
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "version"})
	assert.ErrorContains(t, cmd.Execute(), "connection refused")
}
