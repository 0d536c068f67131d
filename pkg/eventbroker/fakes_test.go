package eventbroker

import (
	"sync"

	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
	"github.com/nsyszr/eventbroker/pkg/model"
)

type sent struct {
	address string
	payload message.Message
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeTransport) record(address string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	m, err := message.Unmarshal(payload)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, sent{address: address, payload: m})
	return nil
}

func (f *fakeTransport) SendOverPersistentChannel(handle string, payload []byte) error {
	return f.record(handle, payload)
}

func (f *fakeTransport) InvokeCallback(target string, payload []byte) error {
	return f.record(target, payload)
}

func (f *fakeTransport) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]sent, len(f.sent))
	copy(out, f.sent)
	return out
}

type signalCall struct {
	pluginID string
	signal   Signal
}

type fakeSignals struct {
	mu    sync.Mutex
	calls []signalCall
	err   error
}

func (f *fakeSignals) SendLivenessSignal(plugin model.Plugin, sig Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, signalCall{pluginID: plugin.ID, signal: sig})
	return f.err
}

func (f *fakeSignals) Count(pluginID string, sig Signal) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c.pluginID == pluginID && c.signal == sig {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu        sync.Mutex
	receivers []string
}

func (f *fakeNotifier) NotifyDisconnect(receiverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.receivers = append(f.receivers, receiverID)
	return nil
}

func (f *fakeNotifier) Receivers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.receivers))
	copy(out, f.receivers)
	return out
}

func newSession(receiverID, pluginID, serviceID, profile, iface, attribute string) Session {
	return Session{
		ReceiverID:    receiverID,
		PluginID:      pluginID,
		ServiceID:     serviceID,
		ProfileName:   profile,
		InterfaceName: iface,
		AttributeName: attribute,
	}
}
