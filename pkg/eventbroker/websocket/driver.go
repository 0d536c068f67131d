package websocket

import (
	"errors"
	"io/ioutil"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned when sending on a stopped driver.
	ErrClosed = errors.New("websocket is closed")

	// ErrOutboxFull is returned when the receiver doesn't read fast enough.
	ErrOutboxFull = errors.New("websocket outbox is full")
)

// Flag tells the outbox worker what to do after writing a message.
type Flag int

const (
	FlagContinue Flag = iota
	FlagCloseGracefully
	FlagTerminate
)

type pongState int

const (
	gotPong pongState = iota
	waitingPong
)

// OutboxMessage is a text frame waiting to be written.
type OutboxMessage struct {
	Flag Flag
	Data []byte
}

// InboxMessage is a text frame received from the client.
type InboxMessage struct {
	Data []byte
}

// Driver runs the read and write workers of one websocket connection and
// pings the client periodically. A client which doesn't answer a ping until
// the next one is due gets disconnected.
type Driver struct {
	conn         net.Conn
	Inbox        chan *InboxMessage
	outbox       chan *OutboxMessage
	pingInterval time.Duration

	pong   pongState
	pongMu sync.Mutex

	terminateCh    chan<- struct{}
	terminatedOnce sync.Once

	stopCh   chan struct{}
	stopOnce sync.Once

	wg sync.WaitGroup
}

// NewDriver creates a driver for the connection. terminateCh is closed when
// the connection ends. A zero ping interval disables pings.
func NewDriver(conn net.Conn, terminateCh chan<- struct{}, pingInterval time.Duration) *Driver {
	return &Driver{
		conn:         conn,
		Inbox:        make(chan *InboxMessage, 100),
		outbox:       make(chan *OutboxMessage, 100),
		pingInterval: pingInterval,
		terminateCh:  terminateCh,
		stopCh:       make(chan struct{}),
	}
}

// Start runs the workers.
func (d *Driver) Start() {
	d.wg.Add(1)
	go d.inboxWorker()
	d.wg.Add(1)
	go d.outboxWorker()
}

// Close waits until both workers are finished.
func (d *Driver) Close() {
	d.wg.Wait()
	log.Debug("websocket driver closed")
}

// Stop terminates the connection without close frame.
func (d *Driver) Stop() {
	d.safeCloseTerminateChannel()
	d.safeCloseStopChannel()
}

// Send queues a text frame. It never blocks.
func (d *Driver) Send(data []byte) error {
	return d.enqueue(NewOutboxMessage(FlagContinue, data))
}

// CloseGracefully queues a close frame.
func (d *Driver) CloseGracefully() error {
	return d.enqueue(NewOutboxMessage(FlagCloseGracefully, nil))
}

func (d *Driver) enqueue(m *OutboxMessage) error {
	select {
	case <-d.stopCh:
		return ErrClosed
	default:
	}

	select {
	case d.outbox <- m:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (d *Driver) closeHandler() {
	defer d.wg.Done()
	d.safeCloseTerminateChannel()
	d.safeCloseStopChannel()
}

func (d *Driver) safeCloseTerminateChannel() {
	d.terminatedOnce.Do(func() {
		close(d.terminateCh)
	})
}

func (d *Driver) safeCloseStopChannel() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

func (d *Driver) setPong(s pongState) {
	d.pongMu.Lock()
	d.pong = s
	d.pongMu.Unlock()
}

func (d *Driver) currentPong() pongState {
	d.pongMu.Lock()
	defer d.pongMu.Unlock()
	return d.pong
}

func (d *Driver) inboxWorker() {
	defer d.closeHandler()

	state := ws.StateServerSide
	ch := wsutil.ControlFrameHandler(d.conn, state)

	r := &wsutil.Reader{
		Source:         d.conn,
		State:          state,
		CheckUTF8:      true,
		OnIntermediate: ch,
	}

	for {
		h, err := r.NextFrame()
		if err != nil {
			// Don't return the error, echo doesn't expect one on a hijacked
			// connection.
			log.Debugf("websocket read frame error: %v", err)
			return
		}

		if h.OpCode.IsControl() {
			if h.OpCode == ws.OpClose {
				log.Debug("websocket connection closed by client")
				return
			}
			if h.OpCode == ws.OpPong {
				d.setPong(gotPong)
			}

			if err = ch(h, r); err != nil {
				log.Errorf("websocket control frame error: %v", err)
				return
			}
			continue
		}

		data, err := ioutil.ReadAll(r)
		if err != nil {
			log.Errorf("websocket read error: %v", err)
			return
		}

		select {
		case d.Inbox <- NewInboxMessage(data):
		case <-d.stopCh:
			return
		}
	}
}

func (d *Driver) outboxWorker() {
	defer d.closeHandler()

	state := ws.StateServerSide
	w := wsutil.NewWriter(d.conn, state, 0)

	var pingCh <-chan time.Time
	if d.pingInterval > 0 {
		ticker := time.NewTicker(d.pingInterval)
		defer ticker.Stop()
		pingCh = ticker.C
	}

	for {
		select {
		case res := <-d.outbox:
			if len(res.Data) > 0 {
				if err := writeFrame(d.conn, w, state, ws.OpText, res.Data); err != nil {
					log.Errorf("websocket terminates because of write error: %s", err.Error())
					return
				}
			}

			switch res.Flag {
			case FlagCloseGracefully:
				if err := writeFrame(d.conn, w, state, ws.OpClose, nil); err != nil {
					log.Debugf("websocket close frame error: %s", err.Error())
				}
				return
			case FlagTerminate:
				return
			}
		case <-pingCh:
			if d.currentPong() == waitingPong {
				log.Warn("websocket client didn't answer the ping, terminating")
				return
			}
			d.setPong(waitingPong)
			if err := writeFrame(d.conn, w, state, ws.OpPing, nil); err != nil {
				log.Errorf("websocket ping error: %s", err.Error())
				return
			}
		case <-d.stopCh:
			return
		}
	}
}

func writeFrame(conn net.Conn, w *wsutil.Writer, state ws.State, op ws.OpCode, data []byte) error {
	if op.IsControl() {
		return ws.WriteFrame(conn, ws.NewFrame(op, true, data))
	}

	w.Reset(conn, state, op)
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}

// NewOutboxMessage copies data into a new outbox message.
func NewOutboxMessage(flag Flag, data []byte) *OutboxMessage {
	m := &OutboxMessage{
		Flag: flag,
	}
	if data != nil {
		m.Data = make([]byte, len(data))
		copy(m.Data, data)
	}
	return m
}

// NewInboxMessage copies data into a new inbox message.
func NewInboxMessage(data []byte) *InboxMessage {
	m := &InboxMessage{}
	if data != nil {
		m.Data = make([]byte, len(data))
		copy(m.Data, data)
	}
	return m
}
