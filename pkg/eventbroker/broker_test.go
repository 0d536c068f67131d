package eventbroker

import (
	"testing"

	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/nsyszr/eventbroker/pkg/storage"
	"github.com/nsyszr/eventbroker/pkg/storage/memory"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const receiverApp1 = "f92ea1839dc16d7396db358365da7066"

type brokerFixture struct {
	broker   *Broker
	store    storage.Interface
	channel  *fakeTransport
	callback *fakeTransport
	signals  *fakeSignals
	notifier *fakeNotifier
}

func newBrokerFixture(t *testing.T, opts ...Option) *brokerFixture {
	f := &brokerFixture{
		store:    memory.NewStore(),
		channel:  &fakeTransport{},
		callback: &fakeTransport{},
		signals:  &fakeSignals{},
		notifier: &fakeNotifier{},
	}

	registry := NewRegistry()
	supervisor := NewSupervisor(registry, f.signals, f.notifier)

	opts = append([]Option{
		WithRegistry(registry),
		WithSupervisor(supervisor),
		WithChannelSender(f.channel),
		WithCallbackInvoker(f.callback),
		WithDisconnectNotifier(f.notifier),
		WithManagerDomain("manager.test"),
	}, opts...)
	f.broker = NewBroker(f.store, opts...)

	return f
}

func (f *brokerFixture) plugin(t *testing.T, id, sdk string) *model.Plugin {
	p := &model.Plugin{ID: id, Name: id, SDKVersion: sdk}
	require.NoError(t, f.store.Plugins().Create(p))
	return p
}

func subscribeRequest(action, origin, serviceID, profile, attribute string) message.Message {
	return message.Message{
		message.KeyAction:    action,
		message.KeyInnerType: message.InnerTypeHTTP,
		message.KeyOrigin:    origin,
		message.KeyServiceID: serviceID,
		message.KeyProfile:   profile,
		message.KeyAttribute: attribute,
	}
}

func TestBrokerSubscribeEventUnsubscribe(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	req := subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(req, p1))

	token := req.String(message.KeyAccessToken)
	require.NotEmpty(t, token)
	require.Len(t, f.broker.Sessions(), 1)

	evt := message.Message{
		message.KeyAccessToken: token,
		message.KeyServiceID:   "S1",
		message.KeyProfile:     "Battery",
		message.KeyAttribute:   "onChange",
	}
	require.NoError(t, f.broker.HandleEvent(evt))

	got := f.channel.Sent()
	require.Len(t, got, 1)
	assert.Equal(t, receiverApp1, got[0].address)
	assert.Equal(t, receiverApp1, got[0].payload.String(message.KeySessionKey))
	assert.Equal(t, "S1.P1.manager.test", got[0].payload.String(message.KeyServiceID))

	// The original event is not modified
	assert.Equal(t, "S1", evt.String(message.KeyServiceID))

	unsub := subscribeRequest(message.ActionDelete, "app1", "S1", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(unsub, p1))
	assert.Empty(t, f.broker.Sessions())

	require.NoError(t, f.broker.HandleEvent(evt))
	assert.Len(t, f.channel.Sent(), 1)
}

func TestBrokerStampsStoredToken(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")
	require.NoError(t, f.store.Tokens().Create(&model.AccessToken{Origin: "app1", ServiceID: "S1.P1.manager.test", Token: "stored"}))

	req := subscribeRequest(message.ActionPut, "app1", "S1.P1.manager.test", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(req, p1))

	assert.Equal(t, "stored", req.String(message.KeyAccessToken))
	sessions := f.broker.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "stored", sessions[0].AccessToken)
	assert.Equal(t, "S1", sessions[0].ServiceID)
}

func TestBrokerStripsStaleToken(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	req := subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange")
	req.Set(message.KeyAccessToken, "stale")
	require.NoError(t, f.broker.HandleRequest(req, p1))

	assert.NotEqual(t, "stale", req.String(message.KeyAccessToken))
	assert.NotEmpty(t, req.String(message.KeyAccessToken))
}

func TestBrokerIgnoresOtherVerbs(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionGet, "app1", "S1", "battery", "onchange"), p1))
	assert.Empty(t, f.broker.Sessions())
}

func TestBrokerRejectsRequestWithoutIdentity(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	req := subscribeRequest(message.ActionPut, "", "S1", "battery", "onchange")
	err := f.broker.HandleRequest(req, p1)
	require.Error(t, err)
	assert.True(t, IsIdentityError(err))
	assert.Empty(t, f.broker.Sessions())
	assert.Empty(t, f.broker.supervisor.Records())
}

func TestBrokerAnonymousOrigin(t *testing.T) {
	f := newBrokerFixture(t, WithOriginRequired(false))
	p1 := f.plugin(t, "P1", "1.1.0")

	req := subscribeRequest(message.ActionPut, "", "S1", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(req, p1))

	sessions := f.broker.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "1985576209a186984f171efd81e91e3d", sessions[0].ReceiverID)
}

func TestBrokerResubscribeReplaces(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	first := subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(first, p1))
	second := subscribeRequest(message.ActionPut, "app1", "S1", "Battery", "onChange")
	require.NoError(t, f.broker.HandleRequest(second, p1))

	sessions := f.broker.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, second.String(message.KeyAccessToken), sessions[0].AccessToken)

	records := f.broker.supervisor.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Count)
	assert.Equal(t, 1, f.signals.Count("P1", SignalStart))
}

func TestBrokerUnsubscribeUnknownIsNoop(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), p1))
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionDelete, "app2", "S1", "battery", "onchange"), p1))

	assert.Len(t, f.broker.Sessions(), 1)
	records := f.broker.supervisor.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Count)
	assert.Equal(t, 0, f.signals.Count("P1", SignalStop))
}

func TestBrokerKeepAliveReferenceCounting(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), p1))
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onlow"), p1))

	records := f.broker.supervisor.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Count)
	assert.Equal(t, 1, f.signals.Count("P1", SignalStart))

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionDelete, "app1", "S1", "battery", "onchange"), p1))
	assert.Equal(t, 0, f.signals.Count("P1", SignalStop))

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionDelete, "app1", "S1", "battery", "onlow"), p1))
	assert.Equal(t, 1, f.signals.Count("P1", SignalStop))
	assert.Empty(t, f.broker.supervisor.Records())
}

func TestBrokerNoKeepAliveForOldPlugins(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.0.0")

	binder := &model.Plugin{ID: "P2", SDKVersion: "1.2.0", ConnectionType: model.ConnectionTypeBinder}
	require.NoError(t, f.store.Plugins().Create(binder))

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), p1))
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), binder))

	assert.Len(t, f.broker.Sessions(), 2)
	assert.Empty(t, f.broker.supervisor.Records())
}

func TestBrokerBackfillsLegacyKey(t *testing.T) {
	f := newBrokerFixture(t)
	legacy := f.plugin(t, "legacy", "1.0.0")
	current := f.plugin(t, "current", "1.1.0")

	req := message.Message{
		message.KeyAction:    message.ActionPut,
		message.KeyInnerType: message.InnerTypeCallback,
		message.KeyOrigin:    "app1",
		message.KeyReceiver:  "app.callbacks",
		message.KeyProfile:   "battery",
		message.KeyAttribute: "onchange",
	}
	require.NoError(t, f.broker.HandleRequest(req, legacy))
	assert.Equal(t, receiverApp1+".legacy@app.callbacks", req.String(message.KeySessionKey))

	req = subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(req, current))
	assert.False(t, req.Has(message.KeySessionKey))
}

func TestBrokerLegacyEventDelivery(t *testing.T) {
	f := newBrokerFixture(t)
	legacy := f.plugin(t, "legacy", "1.0.0")

	req := message.Message{
		message.KeyAction:    message.ActionPut,
		message.KeyInnerType: message.InnerTypeCallback,
		message.KeyOrigin:    "app1",
		message.KeyReceiver:  "app.callbacks",
		message.KeyServiceID: "S1.legacy.manager.test",
		message.KeyProfile:   "battery",
		message.KeyAttribute: "onchange",
	}
	require.NoError(t, f.broker.HandleRequest(req, legacy))

	evt := message.Message{
		message.KeySessionKey: req.String(message.KeySessionKey),
		message.KeyServiceID:  "S1",
		message.KeyProfile:    "battery",
		message.KeyAttribute:  "onChange",
	}
	require.NoError(t, f.broker.HandleEvent(evt))

	got := f.callback.Sent()
	require.Len(t, got, 1)
	assert.Equal(t, "app.callbacks", got[0].address)
	assert.Equal(t, receiverApp1, got[0].payload.String(message.KeySessionKey))
	assert.Equal(t, "S1.legacy.manager.test", got[0].payload.String(message.KeyServiceID))
	assert.Empty(t, f.channel.Sent())
}

func TestBrokerServiceChangeBroadcast(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	a := subscribeRequest(message.ActionPut, "app1", "", "serviceDiscovery", "onServiceChange")
	require.NoError(t, f.broker.HandleRequest(a, p1))
	b := subscribeRequest(message.ActionPut, "app2", "", "servicediscovery", "onservicechange")
	require.NoError(t, f.broker.HandleRequest(b, p1))
	other := subscribeRequest(message.ActionPut, "app3", "", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(other, p1))

	evt := message.Message{
		message.KeyAccessToken: a.String(message.KeyAccessToken),
		message.KeyServiceID:   "dev1",
		message.KeyProfile:     "serviceDiscovery",
		message.KeyAttribute:   "onServiceChange",
		message.KeyNetworkService: map[string]interface{}{
			message.KeyID: "dev1",
			"name":        "Host",
		},
	}
	require.NoError(t, f.broker.HandleEvent(evt))

	got := f.channel.Sent()
	require.Len(t, got, 2)
	receivers := []string{got[0].address, got[1].address}
	assert.Contains(t, receivers, receiverApp1)

	for _, s := range got {
		assert.Equal(t, "dev1.P1.manager.test", s.payload.String(message.KeyServiceID))
		assert.Equal(t, s.address, s.payload.String(message.KeySessionKey))

		ns, ok := s.payload.Map(message.KeyNetworkService)
		require.True(t, ok)
		assert.Equal(t, "dev1.P1.manager.test", ns.String(message.KeyID))
		assert.Equal(t, "Host", ns.String("name"))
	}

	// The event of the plugin is not modified
	ns, _ := evt.Map(message.KeyNetworkService)
	assert.Equal(t, "dev1", ns.String(message.KeyID))
}

func TestBrokerServiceChangeUnknownPlugin(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "", "serviceDiscovery", "onServiceChange"), p1))

	evt := message.Message{
		message.KeyAccessToken: "unknown",
		message.KeyProfile:     "serviceDiscovery",
		message.KeyAttribute:   "onServiceChange",
	}
	require.NoError(t, f.broker.HandleEvent(evt))
	assert.Empty(t, f.channel.Sent())
}

func TestBrokerUnknownPluginDropsEvent(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	req := subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(req, p1))
	require.NoError(t, f.store.Plugins().Delete("P1"))

	evt := message.Message{
		message.KeyAccessToken: req.String(message.KeyAccessToken),
		message.KeyServiceID:   "S1",
		message.KeyProfile:     "battery",
		message.KeyAttribute:   "onchange",
	}
	require.NoError(t, f.broker.HandleEvent(evt))
	assert.Empty(t, f.channel.Sent())
}

func TestBrokerDeliveryFailureKeepsSession(t *testing.T) {
	f := newBrokerFixture(t)
	f.channel.err = errors.New("connection reset")
	p1 := f.plugin(t, "P1", "1.1.0")

	req := subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(req, p1))

	evt := message.Message{
		message.KeyAccessToken: req.String(message.KeyAccessToken),
		message.KeyServiceID:   "S1",
		message.KeyProfile:     "battery",
		message.KeyAttribute:   "onchange",
	}
	hook := logtest.NewGlobal()
	defer hook.Reset()

	err := f.broker.HandleEvent(evt)
	require.Error(t, err)
	assert.True(t, IsDeliveryError(err))
	assert.Len(t, f.broker.Sessions(), 1)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, receiverApp1, hook.LastEntry().Data["receiverId"])
}

func TestBrokerOnPluginDisconnected(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")
	p2 := f.plugin(t, "P2", "1.1.0")

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), p1))
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app2", "S1", "battery", "onchange"), p1))
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), p2))

	f.broker.OnPluginDisconnected("P1")

	sessions := f.broker.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "P2", sessions[0].PluginID)

	records := f.broker.supervisor.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "P2", records[0].Plugin.ID)
	assert.Equal(t, 0, f.signals.Count("P1", SignalStop))
}

func TestBrokerOnReceiverDisconnected(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), p1))
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onlow"), p1))
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app2", "S1", "battery", "onchange"), p1))

	f.broker.OnReceiverDisconnected(receiverApp1)

	sessions := f.broker.Sessions()
	require.Len(t, sessions, 1)
	assert.NotEqual(t, receiverApp1, sessions[0].ReceiverID)

	records := f.broker.supervisor.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Count)
}

func TestBrokerOnTokenRotated(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")

	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), p1))
	f.broker.OnTokenRotated("P1", "rotated")

	evt := message.Message{
		message.KeyAccessToken: "rotated",
		message.KeyServiceID:   "S1",
		message.KeyProfile:     "battery",
		message.KeyAttribute:   "onchange",
	}
	require.NoError(t, f.broker.HandleEvent(evt))
	assert.Len(t, f.channel.Sent(), 1)
}

func TestBrokerLivenessCallbacks(t *testing.T) {
	f := newBrokerFixture(t)
	p1 := f.plugin(t, "P1", "1.1.0")
	require.NoError(t, f.broker.HandleRequest(subscribeRequest(message.ActionPut, "app1", "S1", "battery", "onchange"), p1))

	f.broker.supervisor.Tick()
	require.True(t, f.broker.supervisor.Records()[0].AwaitingAck)

	f.broker.OnLivenessResponse("P1")
	assert.False(t, f.broker.supervisor.Records()[0].AwaitingAck)

	require.NoError(t, f.broker.OnRequestDisconnect(receiverApp1))
	assert.Equal(t, []string{receiverApp1}, f.notifier.Receivers())
}

func TestSplitServiceID(t *testing.T) {
	b := NewBroker(nil, WithManagerDomain("manager.test"))
	assert.Equal(t, "S1", b.SplitServiceID("P1", "S1.P1.manager.test"))
	assert.Equal(t, "", b.SplitServiceID("P1", "P1.manager.test"))
	assert.Equal(t, "S1", b.SplitServiceID("P1", "S1"))
	assert.Equal(t, "", b.SplitServiceID("P1", ""))
	assert.Equal(t, "myhost", b.SplitServiceID("host", "myhost.host.manager.test"))
	assert.Equal(t, "host.lamp", b.SplitServiceID("host", "host.lamp.host.manager.test"))
	assert.Equal(t, "myhost", b.SplitServiceID("host", "myhost.host.other.domain"))
	assert.Equal(t, "myhost", b.SplitServiceID("host", "myhost"))
}

func TestBrokerLocalServiceIDContainingPluginID(t *testing.T) {
	f := newBrokerFixture(t)
	host := f.plugin(t, "host", "1.1.0")

	req := subscribeRequest(message.ActionPut, "app1", "myhost.host.manager.test", "battery", "onchange")
	require.NoError(t, f.broker.HandleRequest(req, host))

	sessions := f.broker.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "myhost", sessions[0].ServiceID)

	evt := message.Message{
		message.KeyAccessToken: req.String(message.KeyAccessToken),
		message.KeyServiceID:   "myhost",
		message.KeyProfile:     "battery",
		message.KeyAttribute:   "onchange",
	}
	require.NoError(t, f.broker.HandleEvent(evt))

	got := f.channel.Sent()
	require.Len(t, got, 1)
	assert.Equal(t, "myhost.host.manager.test", got[0].payload.String(message.KeyServiceID))
}

func TestAppendServiceID(t *testing.T) {
	b := NewBroker(nil, WithManagerDomain("manager.test"))
	assert.Equal(t, "S1.P1.manager.test", b.AppendServiceID("P1", "S1"))
	assert.Equal(t, "P1.manager.test", b.AppendServiceID("P1", ""))
}

func TestSupportsKeepAlive(t *testing.T) {
	assert.True(t, SupportsKeepAlive(&model.Plugin{SDKVersion: "1.1.0", ConnectionType: model.ConnectionTypeBroadcast}))
	assert.True(t, SupportsKeepAlive(&model.Plugin{SDKVersion: "2.0.0", ConnectionType: model.ConnectionTypeBroadcast}))
	assert.False(t, SupportsKeepAlive(&model.Plugin{SDKVersion: "1.0.0", ConnectionType: model.ConnectionTypeBroadcast}))
	assert.False(t, SupportsKeepAlive(&model.Plugin{SDKVersion: "1.1.0", ConnectionType: model.ConnectionTypeBinder}))
	assert.False(t, SupportsKeepAlive(&model.Plugin{SDKVersion: "", ConnectionType: model.ConnectionTypeBroadcast}))
}
