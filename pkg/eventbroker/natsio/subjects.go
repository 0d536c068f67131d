package natsio

import (
	"fmt"
	"strings"

	nats "github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject namespace of the manager.
const DefaultSubjectPrefix = "dconnect.manager.v1"

// Conn is the part of a NATS connection the adapters use.
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Subjects builds the subjects below a prefix.
type Subjects struct {
	Prefix string
}

// NewSubjects creates subjects for the prefix. An empty prefix falls back to
// the default.
func NewSubjects(prefix string) Subjects {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return Subjects{Prefix: prefix}
}

// Events is the subject plugins publish their events to.
func (s Subjects) Events() string {
	return s.Prefix + ".events"
}

// EventsQueue is the queue group of the event consumers.
func (s Subjects) EventsQueue() string {
	return s.Prefix + ".queue.events"
}

// Requests is the subject of subscribe and unsubscribe requests.
func (s Subjects) Requests() string {
	return s.Prefix + ".requests"
}

// PluginKeepAlive is the subject the liveness signals of a plugin go to.
func (s Subjects) PluginKeepAlive(pluginID string) string {
	return fmt.Sprintf("%s.plugins.%s.keepalive", s.Prefix, pluginID)
}

// KeepAlive is the subject plugins answer liveness signals on.
func (s Subjects) KeepAlive() string {
	return s.Prefix + ".keepalive"
}

// Authorize is the subject of access token requests.
func (s Subjects) Authorize() string {
	return s.Prefix + ".authority.authorize"
}

// Rotate is the subject of plugin token rotations.
func (s Subjects) Rotate() string {
	return s.Prefix + ".authority.rotate"
}

// Revoke is the subject of access token revocations.
func (s Subjects) Revoke() string {
	return s.Prefix + ".authority.revoke"
}
