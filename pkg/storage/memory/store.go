package memory

import "github.com/nsyszr/eventbroker/pkg/storage"

// Store contains all memory-based sub-stores for managing the persistent models
type store struct {
	plugins *pluginStore
	tokens  *tokenStore
}

// NewStore creates a new memory-based Storage interface
func NewStore() storage.Interface {
	return &store{
		plugins: newPluginStore(),
		tokens:  newTokenStore(),
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
