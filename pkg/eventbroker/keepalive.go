package eventbroker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nsyszr/eventbroker/pkg/model"
	log "github.com/sirupsen/logrus"
)

// Signal is a liveness signal sent to a plugin.
type Signal string

const (
	SignalStart Signal = "START"
	SignalStop  Signal = "STOP"
	SignalCheck Signal = "CHECK"
)

// DefaultKeepAliveInterval is the period between two liveness checks.
const DefaultKeepAliveInterval = 30 * time.Second

// SignalSender sends liveness signals to plugins.
type SignalSender interface {
	SendLivenessSignal(plugin model.Plugin, sig Signal) error
}

// DisconnectNotifier tears down the transport of an evicted receiver.
type DisconnectNotifier interface {
	NotifyDisconnect(receiverID string) error
}

// Record is the keep-alive state of a monitored plugin.
type Record struct {
	Plugin      model.Plugin
	Count       int
	AwaitingAck bool
	Missed      int
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithInterval sets the period between two ticks.
func WithInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithGraceCycles sets how many unanswered checks are tolerated before a
// plugin is evicted. Zero evicts on the first missed ack.
func WithGraceCycles(n int) SupervisorOption {
	return func(s *Supervisor) {
		if n >= 0 {
			s.grace = n
		}
	}
}

// Supervisor runs the keep-alive protocol for every plugin that has at least
// one session and evicts plugins that stop answering.
type Supervisor struct {
	registry *Registry
	signals  SignalSender
	notifier DisconnectNotifier
	interval time.Duration
	grace    int

	records map[string]*Record
	mu      sync.Mutex

	quitCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewSupervisor creates a supervisor evicting from the given registry.
func NewSupervisor(registry *Registry, signals SignalSender, notifier DisconnectNotifier, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		registry: registry,
		signals:  signals,
		notifier: notifier,
		interval: DefaultKeepAliveInterval,
		records:  make(map[string]*Record),
		quitCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the tick period.
func (s *Supervisor) Interval() time.Duration {
	return s.interval
}

// Register adds a reference to the plugin. The first reference starts the
// monitoring.
func (s *Supervisor) Register(plugin model.Plugin) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.register(plugin)
}

// Unregister drops a reference to the plugin. The last reference stops the
// monitoring.
func (s *Supervisor) Unregister(pluginID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unregister(pluginID, 1)
}

// Track runs add while holding the supervisor lock and registers the plugin
// if add reports a new session. Eviction can't interleave with the insert.
func (s *Supervisor) Track(plugin model.Plugin, add func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add() {
		s.register(plugin)
	}
}

// Untrack runs remove while holding the supervisor lock and drops one
// reference per removed session.
func (s *Supervisor) Untrack(pluginID string, remove func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := remove(); n > 0 {
		s.unregister(pluginID, n)
	}
}

// Release runs remove while holding the supervisor lock and drops one
// reference for every removed session, grouped by plugin.
func (s *Supervisor) Release(remove func() []Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, sess := range remove() {
		counts[sess.PluginID]++
	}
	for pluginID, n := range counts {
		s.unregister(pluginID, n)
	}
}

// Drop runs remove while holding the supervisor lock and deletes the record
// of the plugin without signaling it.
func (s *Supervisor) Drop(pluginID string, remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove()
	delete(s.records, pluginID)
}

// OnAck marks the plugin as alive.
func (s *Supervisor) OnAck(pluginID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[pluginID]
	if !ok {
		log.WithField("pluginId", pluginID).Debug("keepalive ack for unmonitored plugin")
		return
	}
	rec.AwaitingAck = false
	rec.Missed = 0
}

// Records returns a snapshot of all records ordered by plugin ID.
func (s *Supervisor) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Plugin.ID < records[j].Plugin.ID
	})
	return records
}

// Tick checks every monitored plugin once. Plugins which didn't answer the
// previous check are evicted.
func (s *Supervisor) Tick() {
	evicted := s.tick()

	for _, sess := range evicted {
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.NotifyDisconnect(sess.ReceiverID); err != nil {
			log.WithFields(log.Fields{
				"pluginId":   sess.PluginID,
				"receiverId": sess.ReceiverID,
			}).Errorf("keepalive failed to notify disconnect: %s", err.Error())
		}
	}
}

func (s *Supervisor) tick() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := make([]Session, 0)
	for id, rec := range s.records {
		if rec.AwaitingAck {
			rec.Missed++
			if rec.Missed > s.grace {
				delete(s.records, id)
				removed := s.registry.RemoveForPlugin(id)
				log.WithFields(log.Fields{
					"pluginId": id,
					"sessions": len(removed),
				}).Warn("keepalive evicted unresponsive plugin")
				evicted = append(evicted, removed...)
				continue
			}
		}

		rec.AwaitingAck = true
		s.signal(rec.Plugin, SignalCheck)
	}
	return evicted
}

// Start runs the ticks in a dedicated goroutine until ctx is done or Stop is
// called.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Infof("keepalive supervisor started with interval %s", s.interval)
		for {
			select {
			case <-ticker.C:
				s.Tick()
			case <-ctx.Done():
				return
			case <-s.quitCh:
				return
			}
		}
	}()
}

// Stop cancels the ticks and sends STOP to every monitored plugin.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.quitCh)

		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.doneCh
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		for id, rec := range s.records {
			s.signal(rec.Plugin, SignalStop)
			delete(s.records, id)
		}
		log.Info("keepalive supervisor stopped")
	})
}

func (s *Supervisor) register(plugin model.Plugin) {
	if rec, ok := s.records[plugin.ID]; ok {
		rec.Count++
		return
	}

	s.records[plugin.ID] = &Record{Plugin: plugin, Count: 1}
	s.signal(plugin, SignalStart)
}

func (s *Supervisor) unregister(pluginID string, n int) {
	rec, ok := s.records[pluginID]
	if !ok {
		return
	}

	rec.Count -= n
	if rec.Count <= 0 {
		delete(s.records, pluginID)
		s.signal(rec.Plugin, SignalStop)
	}
}

func (s *Supervisor) signal(plugin model.Plugin, sig Signal) {
	if s.signals == nil {
		return
	}
	if err := s.signals.SendLivenessSignal(plugin, sig); err != nil {
		log.WithFields(log.Fields{
			"pluginId": plugin.ID,
			"signal":   sig,
		}).Errorf("keepalive failed to send signal: %s", err.Error())
	}
}
