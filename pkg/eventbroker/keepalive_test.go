package eventbroker

import (
	"context"
	"testing"
	"time"

	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(opts ...SupervisorOption) (*Supervisor, *Registry, *fakeSignals, *fakeNotifier) {
	registry := NewRegistry()
	signals := &fakeSignals{}
	notifier := &fakeNotifier{}
	return NewSupervisor(registry, signals, notifier, opts...), registry, signals, notifier
}

func TestSupervisorRegisterUnregister(t *testing.T) {
	s, _, signals, _ := newTestSupervisor()
	p1 := model.Plugin{ID: "P1"}

	s.Register(p1)
	s.Register(p1)
	assert.Equal(t, 1, signals.Count("P1", SignalStart))

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Count)

	s.Unregister("P1")
	assert.Equal(t, 0, signals.Count("P1", SignalStop))
	s.Unregister("P1")
	assert.Equal(t, 1, signals.Count("P1", SignalStop))
	assert.Empty(t, s.Records())

	// Unknown plugins are ignored
	s.Unregister("P1")
	assert.Equal(t, 1, signals.Count("P1", SignalStop))
}

func TestSupervisorAckingPluginIsNeverEvicted(t *testing.T) {
	s, registry, signals, notifier := newTestSupervisor()
	registry.Add(newSession("r1", "P1", "s1", "battery", "", "onchange"))
	s.Register(model.Plugin{ID: "P1"})

	for i := 0; i < 10; i++ {
		s.Tick()
		s.OnAck("P1")
	}

	assert.Len(t, s.Records(), 1)
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, 10, signals.Count("P1", SignalCheck))
	assert.Empty(t, notifier.Receivers())
}

func TestSupervisorEvictsOnFirstMissedAck(t *testing.T) {
	s, registry, signals, notifier := newTestSupervisor()
	registry.Add(newSession("r1", "P1", "s1", "battery", "", "onchange"))
	registry.Add(newSession("r2", "P1", "s1", "battery", "", "onchange"))
	registry.Add(newSession("r3", "P2", "s1", "battery", "", "onchange"))
	s.Register(model.Plugin{ID: "P1"})
	s.Register(model.Plugin{ID: "P2"})

	s.Tick()
	assert.Equal(t, 1, signals.Count("P1", SignalCheck))
	s.OnAck("P2")

	s.Tick()
	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "P2", records[0].Plugin.ID)

	sessions := registry.FindAll()
	require.Len(t, sessions, 1)
	assert.Equal(t, "P2", sessions[0].PluginID)

	assert.ElementsMatch(t, []string{"r1", "r2"}, notifier.Receivers())
}

func TestSupervisorGraceCycles(t *testing.T) {
	s, registry, signals, notifier := newTestSupervisor(WithGraceCycles(1))
	registry.Add(newSession("r1", "P1", "s1", "battery", "", "onchange"))
	s.Register(model.Plugin{ID: "P1"})

	s.Tick()
	s.Tick()
	assert.Len(t, s.Records(), 1)
	assert.Equal(t, 2, signals.Count("P1", SignalCheck))

	s.Tick()
	assert.Empty(t, s.Records())
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, []string{"r1"}, notifier.Receivers())
}

func TestSupervisorSignalErrorsDoNotAbortTick(t *testing.T) {
	s, _, signals, _ := newTestSupervisor()
	s.Register(model.Plugin{ID: "P1"})
	s.Register(model.Plugin{ID: "P2"})
	signals.err = errors.New("no route")

	s.Tick()

	assert.Equal(t, 1, signals.Count("P1", SignalCheck))
	assert.Equal(t, 1, signals.Count("P2", SignalCheck))
	for _, rec := range s.Records() {
		assert.True(t, rec.AwaitingAck)
	}
}

func TestSupervisorDrop(t *testing.T) {
	s, registry, signals, _ := newTestSupervisor()
	p1 := model.Plugin{ID: "P1"}
	s.Track(p1, func() bool {
		registry.Add(newSession("r1", "P1", "s1", "battery", "", "onchange"))
		return true
	})

	var removed []Session
	s.Drop("P1", func() {
		removed = registry.RemoveForPlugin("P1")
	})

	assert.Len(t, removed, 1)
	assert.Empty(t, s.Records())
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 0, signals.Count("P1", SignalStop))
}

func TestSupervisorReleaseGroupsByPlugin(t *testing.T) {
	s, registry, signals, _ := newTestSupervisor()
	p1 := model.Plugin{ID: "P1"}
	p2 := model.Plugin{ID: "P2"}
	for _, sess := range []Session{
		newSession("r1", "P1", "s1", "battery", "", "onchange"),
		newSession("r1", "P1", "s1", "battery", "", "onlow"),
		newSession("r2", "P1", "s1", "battery", "", "onchange"),
		newSession("r1", "P2", "s1", "battery", "", "onchange"),
	} {
		sess := sess
		plugin := p1
		if sess.PluginID == "P2" {
			plugin = p2
		}
		s.Track(plugin, func() bool {
			registry.Add(sess)
			return true
		})
	}

	s.Release(func() []Session {
		return registry.RemoveForReceiver("r1")
	})

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "P1", records[0].Plugin.ID)
	assert.Equal(t, 1, records[0].Count)
	assert.Equal(t, 1, signals.Count("P2", SignalStop))
	assert.Equal(t, 0, signals.Count("P1", SignalStop))
}

func TestSupervisorReleaseAfterEvictionKeepsNewRecord(t *testing.T) {
	s, registry, signals, _ := newTestSupervisor()
	p1 := model.Plugin{ID: "P1"}
	s.Track(p1, func() bool {
		registry.Add(newSession("r1", "P1", "s1", "battery", "", "onchange"))
		return true
	})

	// Evicted before the receiver's disconnect is handled
	s.Tick()
	s.Tick()
	require.Empty(t, s.Records())
	require.Equal(t, 0, registry.Len())

	s.Track(p1, func() bool {
		registry.Add(newSession("r2", "P1", "s1", "battery", "", "onchange"))
		return true
	})

	s.Release(func() []Session {
		return registry.RemoveForReceiver("r1")
	})

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Count)
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, 0, signals.Count("P1", SignalStop))
}

func TestSupervisorStopSignalsAllPlugins(t *testing.T) {
	s, _, signals, _ := newTestSupervisor()
	s.Register(model.Plugin{ID: "P1"})
	s.Register(model.Plugin{ID: "P2"})

	s.Stop()
	s.Stop()

	assert.Equal(t, 1, signals.Count("P1", SignalStop))
	assert.Equal(t, 1, signals.Count("P2", SignalStop))
	assert.Empty(t, s.Records())
}

func TestSupervisorStartTicks(t *testing.T) {
	s, _, signals, _ := newTestSupervisor(WithInterval(10*time.Millisecond), WithGraceCycles(1000))
	s.Register(model.Plugin{ID: "P1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for signals.Count("P1", SignalCheck) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.NotZero(t, signals.Count("P1", SignalCheck))

	s.Stop()
	assert.Equal(t, 1, signals.Count("P1", SignalStop))
}
