package cli

import (
	"testing"

	"github.com/nsyszr/eventbroker/config"
	"github.com/stretchr/testify/assert"
)

func TestMigrateDatabaseURL(t *testing.T) {
	h := newMigrateHandler(&config.Config{DatabaseURL: "postgres://cfg"})
	assert.Equal(t, "postgres://arg", h.databaseURL([]string{"postgres://arg"}, 0))
	assert.Equal(t, "postgres://cfg", h.databaseURL(nil, 0))
	assert.Equal(t, "postgres://cfg", h.databaseURL([]string{""}, 0))

	h = newMigrateHandler(&config.Config{DatabaseURL: "memory"})
	assert.Equal(t, "", h.databaseURL(nil, 0))
}
