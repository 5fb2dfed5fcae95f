package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jericodaag/Horizon-sub000/pkg/logger"
)

// Status is the connection lifecycle state surfaced to the UI layer.
type Status string

const (
	StatusInactive   Status = "inactive"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	// StatusDisconnected means the retry budget is spent. No further
	// attempts happen until Activate is called again; the engine keeps
	// working off the durable store alone.
	StatusDisconnected Status = "disconnected"
)

// Manager owns one websocket connection to the real-time endpoint: dial,
// identify, reconnect with a fixed delay up to a bounded number of attempts,
// teardown. Inbound events are decoded and delivered in arrival order on a
// single channel; outbound emits are best effort and never fail the caller.
type Manager struct {
	socketURL   string
	token       string
	retryDelay  time.Duration
	maxAttempts int
	log         zerolog.Logger

	mu     sync.RWMutex
	status Status
	conn   *websocket.Conn
	cancel context.CancelFunc

	events chan Event
	send   chan Envelope
}

func NewManager(socketURL, token string, retryDelay time.Duration, maxAttempts int) *Manager {
	return &Manager{
		socketURL:   socketURL,
		token:       token,
		retryDelay:  retryDelay,
		maxAttempts: maxAttempts,
		log:         logger.With("transport"),
		status:      StatusInactive,
		events:      make(chan Event, 256),
		send:        make(chan Envelope, 256),
	}
}

// Events is the single inbound event stream. Within one connection, order is
// preserved as delivered by the server.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Activate opens the connection and keeps it alive while the conversation
// view is active. Safe to call again after the retry budget was exhausted.
func (m *Manager) Activate(userID string) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.status = StatusConnecting
	m.mu.Unlock()

	go m.writePump(ctx)
	go m.run(ctx, userID)
}

// Deactivate tears the connection down immediately.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.status = StatusInactive
	m.mu.Unlock()
}

// Emit marshals and queues one outbound event. While not connected this is a
// no-op: losing a typing signal or a transport echo only degrades to
// durable-store-only behavior, it never blocks or errors.
func (m *Manager) Emit(t EventType, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		m.log.Error().Err(err).Str("event", string(t)).Msg("marshal outbound event")
		return
	}

	select {
	case m.send <- Envelope{Type: t, Payload: raw}:
	default:
		m.log.Warn().Str("event", string(t)).Msg("outbound queue full, dropping event")
	}
}

func (m *Manager) run(ctx context.Context, userID string) {
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		m.setStatus(StatusConnecting)
		conn, err := m.dial()
		if err != nil {
			attempts++
			m.log.Warn().Err(err).Int("attempt", attempts).Msg("connect failed")
			if attempts >= m.maxAttempts {
				m.giveUp(true)
				return
			}
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		// Identify before publishing the conn so the handshake frame is
		// always first on the wire; writePump only writes once conn is set.
		raw, _ := json.Marshal(IdentifyPayload{UserID: userID})
		if err := conn.WriteJSON(Envelope{Type: EventIdentify, Payload: raw}); err != nil {
			conn.Close()
			attempts++
			if attempts >= m.maxAttempts {
				m.giveUp(true)
				return
			}
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		attempts = 0
		m.setConn(conn)
		m.setStatus(StatusConnected)
		m.log.Info().Str("user_id", userID).Msg("connected and identified")
		m.deliver(Event{Type: EventConnected})

		m.readLoop(ctx, conn)

		m.setConn(nil)
		m.deliver(Event{Type: EventDisconnected})

		if ctx.Err() != nil {
			return
		}
		m.log.Warn().Msg("connection lost, reconnecting")
		attempts++
		if attempts >= m.maxAttempts {
			m.giveUp(false)
			return
		}
		if !m.sleep(ctx) {
			return
		}
	}
}

// giveUp parks the manager in the permanent disconnected state: the retry
// budget is spent and nothing happens until the next explicit Activate.
func (m *Manager) giveUp(deliver bool) {
	m.log.Error().Int("attempts", m.maxAttempts).Msg("retry budget spent, giving up until reactivation")

	m.mu.Lock()
	m.status = StatusDisconnected
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	if deliver {
		m.deliver(Event{Type: EventDisconnected})
	}
}

func (m *Manager) dial() (*websocket.Conn, error) {
	u, err := url.Parse(m.socketURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", m.token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				m.log.Warn().Err(err).Msg("read failed")
			}
			conn.Close()
			return
		}

		ev, err := decode(env)
		if err != nil {
			m.log.Debug().Err(err).Str("event", string(env.Type)).Msg("dropping undecodable event")
			continue
		}
		m.deliver(ev)
	}
}

// writePump serializes all post-identify writes onto one goroutine, the same
// shape as the client read/write pump split in gorilla-based chat clients.
func (m *Manager) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-m.send:
			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteJSON(env); err != nil {
				m.log.Warn().Err(err).Str("event", string(env.Type)).Msg("write failed")
			}
		}
	}
}

func (m *Manager) deliver(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn().Str("event", string(ev.Type)).Msg("inbound queue full, dropping event")
	}
}

func (m *Manager) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(m.retryDelay):
		return true
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) setConn(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}
