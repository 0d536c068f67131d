package postgres

import (
	"github.com/jmoiron/sqlx"
	"github.com/nsyszr/eventbroker/pkg/storage"
)

// store contains all PostgreSQL based sub-stores for managing the models
type store struct {
	plugins *pluginStore
	tokens  *tokenStore
}

// NewStore creates a new PostgreSQL based Storage interface
func NewStore(db *sqlx.DB) storage.Interface {
	return &store{
		plugins: newPluginStore(db),
		tokens:  newTokenStore(db),
	}
}

// Plugins returns a sub-store for managing the Plugin model
func (s *store) Plugins() storage.PluginStore {
	return s.plugins
}

// Tokens returns a sub-store for managing the AccessToken model
func (s *store) Tokens() storage.TokenStore {
	return s.tokens
}
