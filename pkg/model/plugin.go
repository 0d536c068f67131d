package model

import "time"

// ConnectionType describes how the manager talks to a plugin.
type ConnectionType string

const (
	ConnectionTypeBroadcast ConnectionType = "BROADCAST"
	ConnectionTypeBinder    ConnectionType = "BINDER"
	ConnectionTypeInternal  ConnectionType = "INTERNAL"
)

// Plugin is a model of the persistency layer. It is the handle the event
// broker resolves a plugin ID to.
type Plugin struct {
	ID               string
	Name             string
	ComponentAddress string
	SDKVersion       string
	ConnectionType   ConnectionType
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
