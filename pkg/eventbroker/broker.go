package eventbroker

import (
	"strings"

	"github.com/google/uuid"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/nsyszr/eventbroker/pkg/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"
)

const (
	// DefaultLegacySDKVersion is the plugin SDK version that still expects a
	// legacy session key.
	DefaultLegacySDKVersion = "1.0.0"

	// KeepAliveSDKVersion is the first plugin SDK version that answers
	// liveness checks.
	KeepAliveSDKVersion = "1.1.0"

	// DefaultManagerDomain is appended to the service IDs sent to clients.
	DefaultManagerDomain = "localhost.deviceconnect.org"

	serviceChangeProfile   = "serviceDiscovery"
	serviceChangeAttribute = "onServiceChange"
)

// Option configures a Broker.
type Option func(*Broker)

// WithRegistry shares an existing registry, e.g. the one of the supervisor.
func WithRegistry(r *Registry) Option {
	return func(b *Broker) {
		b.registry = r
	}
}

// WithSupervisor enables the keep-alive protocol.
func WithSupervisor(s *Supervisor) Option {
	return func(b *Broker) {
		b.supervisor = s
	}
}

// WithChannelSender sets the persistent channel send primitive.
func WithChannelSender(sender ChannelSender) Option {
	return func(b *Broker) {
		b.channel = sender
	}
}

// WithCallbackInvoker sets the callback send primitive.
func WithCallbackInvoker(invoker CallbackInvoker) Option {
	return func(b *Broker) {
		b.callback = invoker
	}
}

// WithDisconnectNotifier sets where disconnect requests of plugins go.
func WithDisconnectNotifier(n DisconnectNotifier) Option {
	return func(b *Broker) {
		b.notifier = n
	}
}

// WithManagerDomain sets the domain appended to client visible service IDs.
func WithManagerDomain(domain string) Option {
	return func(b *Broker) {
		if domain != "" {
			b.domain = domain
		}
	}
}

// WithOriginRequired rejects requests without origin and session key.
func WithOriginRequired(required bool) Option {
	return func(b *Broker) {
		b.requireOrigin = required
	}
}

// WithLegacySDKVersion sets the plugin SDK version that gets a legacy session
// key back-filled.
func WithLegacySDKVersion(version string) Option {
	return func(b *Broker) {
		if version != "" {
			b.legacySDK = version
		}
	}
}

// Broker accepts subscribe and unsubscribe requests and routes the events
// produced by plugins to the subscribed receivers.
type Broker struct {
	store      storage.Interface
	registry   *Registry
	supervisor *Supervisor
	channel    ChannelSender
	callback   CallbackInvoker
	notifier   DisconnectNotifier

	domain        string
	requireOrigin bool
	legacySDK     string

	channelResolver  Resolver
	callbackResolver Resolver
}

// NewBroker creates a broker looking up tokens and plugins in store.
func NewBroker(store storage.Interface, opts ...Option) *Broker {
	b := &Broker{
		store:         store,
		domain:        DefaultManagerDomain,
		requireOrigin: true,
		legacySDK:     DefaultLegacySDKVersion,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = NewRegistry()
	}

	b.channelResolver = NewChannelResolver(b.channel, b.requireOrigin)
	b.callbackResolver = NewCallbackResolver(b.callback, b.requireOrigin)

	return b
}

// Registry returns the session registry of the broker.
func (b *Broker) Registry() *Registry {
	return b.registry
}

// ResolverFor selects the identity strategy by the way the request reached
// the manager.
func (b *Broker) ResolverFor(req message.Message) Resolver {
	if IsChannelRequest(req) {
		return b.channelResolver
	}
	return b.callbackResolver
}

// HandleRequest stamps the access token of the requesting origin onto the
// request and dispatches subscribe (PUT) and unsubscribe (DELETE) requests.
// Other verbs are ignored.
func (b *Broker) HandleRequest(req message.Message, plugin *model.Plugin) error {
	if b.store != nil {
		origin := req.String(message.KeyOrigin)
		serviceID := req.String(message.KeyServiceID)

		tok, err := b.store.Tokens().FindByOriginAndServiceID(origin, serviceID)
		switch {
		case err == nil:
			req.Set(message.KeyAccessToken, tok.Token)
		case err == storage.ErrNotFound:
			req.Del(message.KeyAccessToken)
		default:
			return errors.Wrap(err, "failed to resolve access token")
		}
	}

	switch req.Action() {
	case message.ActionPut:
		return b.HandleSubscribe(req, plugin)
	case message.ActionDelete:
		return b.HandleUnsubscribe(req, plugin)
	}
	return nil
}

// HandleSubscribe adds a session for the request. A session with the same
// identity is replaced.
func (b *Broker) HandleSubscribe(req message.Message, plugin *model.Plugin) error {
	if plugin == nil {
		return errors.New("subscribe request without plugin")
	}

	resolver := b.ResolverFor(req)
	receiverID, err := resolver.ComputeReceiverID(req)
	if err != nil {
		return err
	}

	if !req.Has(message.KeyAccessToken) {
		req.Set(message.KeyAccessToken, uuid.New().String())
	}

	serviceID := b.SplitServiceID(plugin.ID, req.String(message.KeyServiceID))
	s := resolver.NewSession(req, serviceID, receiverID, plugin.ID)

	add := func() bool {
		return !b.registry.Replace(s)
	}
	if b.supervisor != nil && SupportsKeepAlive(plugin) {
		b.supervisor.Track(*plugin, add)
	} else {
		add()
	}

	b.backfillLegacyKey(req, plugin, receiverID)

	log.WithFields(log.Fields{
		"receiverId": receiverID,
		"pluginId":   plugin.ID,
		"serviceId":  serviceID,
		"profile":    s.ProfileName,
		"interface":  s.InterfaceName,
		"attribute":  s.AttributeName,
		"transport":  s.Transport.Kind(),
	}).Debug("event session added")

	return nil
}

// HandleUnsubscribe removes the session of the request. Unknown sessions are
// ignored.
func (b *Broker) HandleUnsubscribe(req message.Message, plugin *model.Plugin) error {
	if plugin == nil {
		return errors.New("unsubscribe request without plugin")
	}

	resolver := b.ResolverFor(req)
	receiverID, err := resolver.ComputeReceiverID(req)
	if err != nil {
		return err
	}

	serviceID := b.SplitServiceID(plugin.ID, req.String(message.KeyServiceID))
	s := resolver.NewSession(req, serviceID, receiverID, plugin.ID)

	removed := false
	remove := func() int {
		if b.registry.RemoveExact(s) {
			removed = true
			return 1
		}
		return 0
	}
	if b.supervisor != nil && SupportsKeepAlive(plugin) {
		b.supervisor.Untrack(plugin.ID, remove)
	} else {
		remove()
	}

	b.backfillLegacyKey(req, plugin, receiverID)

	if removed {
		log.WithFields(log.Fields{
			"receiverId": receiverID,
			"pluginId":   plugin.ID,
			"serviceId":  serviceID,
		}).Debug("event session removed")
	}

	return nil
}

// HandleEvent routes an event produced by a plugin to its subscriber. Events
// nobody subscribed are dropped.
func (b *Broker) HandleEvent(evt message.Message) error {
	if isServiceChangeEvent(evt) {
		return b.handleServiceChange(evt)
	}

	s, ok := b.ResolverFor(evt).MatchEvent(evt, b.registry.FindAll())
	if !ok {
		log.WithFields(log.Fields{
			"serviceId": evt.String(message.KeyServiceID),
			"profile":   evt.String(message.KeyProfile),
			"interface": evt.String(message.KeyInterface),
			"attribute": evt.String(message.KeyAttribute),
		}).Debug("no session for event, dropped")
		return nil
	}

	plugin, err := b.findPlugin(s.PluginID)
	if err != nil {
		return err
	}
	if plugin == nil {
		log.WithField("pluginId", s.PluginID).Warn("plugin of event session not found, event dropped")
		return nil
	}

	out := evt.Clone()
	out.Set(message.KeySessionKey, s.ReceiverID)
	out.Set(message.KeyServiceID, b.AppendServiceID(plugin.ID, evt.String(message.KeyServiceID)))

	return b.deliver(s, out)
}

func (b *Broker) handleServiceChange(evt message.Message) error {
	pluginID := b.serviceChangePluginID(evt)
	plugin, err := b.findPlugin(pluginID)
	if err != nil {
		return err
	}
	if plugin == nil {
		log.WithField("pluginId", pluginID).Warn("plugin of service change event not found, event dropped")
		return nil
	}

	rewritten := evt.Clone()
	rewritten.Set(message.KeyServiceID, b.AppendServiceID(plugin.ID, evt.String(message.KeyServiceID)))
	if ns, ok := rewritten.Map(message.KeyNetworkService); ok {
		if id := ns.String(message.KeyID); id != "" {
			ns.Set(message.KeyID, b.AppendServiceID(plugin.ID, id))
		}
		rewritten[message.KeyNetworkService] = ns
	}

	var lastErr error
	for _, s := range b.registry.FindAll() {
		if !s.HasTopic(serviceChangeProfile, "", serviceChangeAttribute) {
			continue
		}

		out := rewritten.Clone()
		out.Set(message.KeySessionKey, s.ReceiverID)
		if err := b.deliver(s, out); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (b *Broker) serviceChangePluginID(evt message.Message) string {
	if token := evt.String(message.KeyAccessToken); token != "" {
		for _, s := range b.registry.FindAll() {
			if s.AccessToken == token {
				return s.PluginID
			}
		}
	}
	if key := evt.String(message.KeySessionKey); key != "" {
		return DecodeLegacyKey(key).PluginID
	}
	return evt.String(message.KeyPluginID)
}

func (b *Broker) deliver(s Session, evt message.Message) error {
	if err := s.Deliver(evt); err != nil {
		log.WithFields(log.Fields{
			"receiverId": s.ReceiverID,
			"pluginId":   s.PluginID,
		}).Errorf("failed to send event: %s", err.Error())
		return err
	}
	return nil
}

func (b *Broker) findPlugin(pluginID string) (*model.Plugin, error) {
	if b.store == nil || pluginID == "" {
		return nil, nil
	}
	plugin, err := b.store.Plugins().FindByID(pluginID)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find plugin")
	}
	return plugin, nil
}

// OnPluginDisconnected removes all sessions of the plugin and stops its
// monitoring.
func (b *Broker) OnPluginDisconnected(pluginID string) {
	var removed []Session
	remove := func() {
		removed = b.registry.RemoveForPlugin(pluginID)
	}
	if b.supervisor != nil {
		// No STOP signal for a plugin that is gone
		b.supervisor.Drop(pluginID, remove)
	} else {
		remove()
	}

	log.WithFields(log.Fields{
		"pluginId": pluginID,
		"sessions": len(removed),
	}).Info("plugin disconnected, event sessions removed")
}

// OnReceiverDisconnected removes all sessions of the receiver.
func (b *Broker) OnReceiverDisconnected(receiverID string) {
	var removed []Session
	remove := func() []Session {
		removed = b.registry.RemoveForReceiver(receiverID)
		return removed
	}
	if b.supervisor != nil {
		b.supervisor.Release(remove)
	} else {
		remove()
	}

	log.WithFields(log.Fields{
		"receiverId": receiverID,
		"sessions":   len(removed),
	}).Info("receiver disconnected, event sessions removed")
}

// OnTokenRotated updates the access token of all sessions of the plugin.
func (b *Broker) OnTokenRotated(pluginID, token string) {
	n := b.registry.UpdateAccessToken(pluginID, token)
	log.WithFields(log.Fields{
		"pluginId": pluginID,
		"sessions": n,
	}).Debug("access token rotated")
}

// OnLivenessResponse forwards a keep-alive answer of a plugin.
func (b *Broker) OnLivenessResponse(pluginID string) {
	if b.supervisor != nil {
		b.supervisor.OnAck(pluginID)
	}
}

// OnRequestDisconnect forwards a plugin's request to drop the transport of a
// receiver.
func (b *Broker) OnRequestDisconnect(receiverID string) error {
	if b.notifier == nil {
		return nil
	}
	return b.notifier.NotifyDisconnect(receiverID)
}

// Sessions returns a snapshot of all sessions.
func (b *Broker) Sessions() []Session {
	return b.registry.FindAll()
}

// AppendServiceID qualifies a plugin local service ID with plugin ID and
// manager domain. An empty service ID yields the plugin itself.
func (b *Broker) AppendServiceID(pluginID, serviceID string) string {
	if serviceID == "" {
		return pluginID + legacyKeySeparator + b.domain
	}
	return serviceID + legacyKeySeparator + pluginID + legacyKeySeparator + b.domain
}

// SplitServiceID returns the plugin local part of a service ID qualified by
// AppendServiceID. Only the trailing plugin segment is split off, so a local
// ID containing the plugin ID stays intact. A service ID without the plugin
// segment is already local.
func (b *Broker) SplitServiceID(pluginID, serviceID string) string {
	if pluginID == "" || serviceID == "" {
		return serviceID
	}

	bare := pluginID + legacyKeySeparator + b.domain
	if serviceID == bare || serviceID == pluginID {
		return ""
	}
	if strings.HasSuffix(serviceID, legacyKeySeparator+bare) {
		return strings.TrimSuffix(serviceID, legacyKeySeparator+bare)
	}

	// Qualified with another manager domain
	if strings.HasPrefix(serviceID, pluginID+legacyKeySeparator) {
		return ""
	}
	segment := legacyKeySeparator + pluginID + legacyKeySeparator
	if idx := strings.LastIndex(serviceID, segment); idx > 0 {
		return serviceID[:idx]
	}
	if strings.HasSuffix(serviceID, legacyKeySeparator+pluginID) {
		return strings.TrimSuffix(serviceID, legacyKeySeparator+pluginID)
	}
	return serviceID
}

// SupportsKeepAlive reports whether the plugin answers liveness checks.
func SupportsKeepAlive(plugin *model.Plugin) bool {
	return plugin.ConnectionType == model.ConnectionTypeBroadcast &&
		compareVersion(plugin.SDKVersion, KeepAliveSDKVersion) >= 0
}

func (b *Broker) backfillLegacyKey(req message.Message, plugin *model.Plugin, receiverID string) {
	if compareVersion(plugin.SDKVersion, b.legacySDK) != 0 {
		return
	}
	req.Set(message.KeySessionKey, EncodeLegacyKey(receiverID, plugin.ID, req.String(message.KeyReceiver)))
}

// compareVersion compares two dotted versions. Invalid versions sort before
// valid ones.
func compareVersion(a, b string) int {
	return semver.Compare(canonicalVersion(a), canonicalVersion(b))
}

func canonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func isServiceChangeEvent(evt message.Message) bool {
	return strings.EqualFold(evt.String(message.KeyProfile), serviceChangeProfile) &&
		strings.EqualFold(evt.String(message.KeyAttribute), serviceChangeAttribute)
}
