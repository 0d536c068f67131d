package storage

import "github.com/nsyszr/eventbroker/pkg/model"

// Interface is implemented by the storage
type Interface interface {
	Plugins() PluginStore
	Tokens() TokenStore
}

// PluginStore is responsible for managing the Plugin model. The event broker
// uses it as plugin registry lookup.
type PluginStore interface {
	FetchAll() (map[string]model.Plugin, error)
	FindByID(id string) (*model.Plugin, error)
	Create(m *model.Plugin) error
	Delete(id string) error
}

// TokenStore is responsible for managing the AccessToken model. The event
// broker queries it for the access token of an origin and a service.
type TokenStore interface {
	FindByOriginAndServiceID(origin, serviceID string) (*model.AccessToken, error)
	Create(m *model.AccessToken) error
	DeleteByOrigin(origin string) (int, error)
}
