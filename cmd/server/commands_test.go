package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{{"serve"}, {"purge"}, {"migrate", "up"}, {"migrate", "down"}, {"migrate", "version"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-key-that-is-at-least-32-characters-long")
	t.Setenv("STORE", "memory")

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "version"})

	err := root.Execute()
	assert.ErrorContains(t, err, "STORE=postgres")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	root := newRootCmd()
	root.SetArgs([]string{"serve"})

	assert.ErrorContains(t, root.Execute(), "JWT_SECRET")
}
