// Package transport maintains the persistent bidirectional connection to the
// chat backend. A Session owns exactly one live WebSocket connection at a
// time, authenticates it with a caller-supplied bearer token, reconnects with
// exponential backoff after unexpected drops, and re-joins every tracked room
// on each successful (re)connect so the UI never observes room loss.
package transport

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/swear-shop/supportchat/internal/metrics"
	"github.com/swear-shop/supportchat/internal/protocol"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds transport tuning parameters.
type Config struct {
	URL                  string        // WebSocket endpoint, e.g. "wss://api.example.com/chat"
	ConnectTimeout       time.Duration // bound on the dial + handshake (default: 10s)
	MaxReconnectAttempts int           // retries after a drop before giving up (default: 8)
	PingInterval         time.Duration // keepalive ping cadence (default: 30s)
}

// DefaultConfig returns sensible defaults for the given endpoint URL.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ConnectTimeout:       10 * time.Second,
		MaxReconnectAttempts: 8,
		PingInterval:         30 * time.Second,
	}
}

// Handler receives a parsed server event. The concrete type is one of the
// protocol event structs (protocol.NewMessageEvent, etc.). Handlers run on
// the read loop goroutine and must not block.
type Handler func(evt interface{})

// Subscription identifies a registered handler so it can be removed.
type Subscription struct {
	evtType string
	id      int
}

// StateHandler is notified whenever the connection state changes.
type StateHandler func(state State)

// DialFunc opens the underlying connection. Production code uses the gobwas
// dialer; tests substitute a pipe.
type DialFunc func(ctx context.Context, url, token string) (net.Conn, error)

type handlerEntry struct {
	id int
	fn Handler
}

// Session is the process-wide transport session: one live connection per
// logged-in user. All methods are safe for concurrent use.
type Session struct {
	config Config
	dial   DialFunc

	mu       sync.Mutex
	conn     net.Conn
	state    State
	token    string // retained for reconnects
	attempt  int    // reconnect attempt counter; reset on successful connect
	gen      int    // connection generation, guards stale read-loop callbacks
	stopped  bool   // caller-initiated disconnect, suppresses auto-reconnect
	retry    *time.Timer
	joined   map[string]struct{} // rooms to (re)join on every connect
	nextSub  int
	handlers map[string][]handlerEntry
	onState  StateHandler

	writeMu sync.Mutex // serializes outbound frames
}

// NewSession creates a Session for the given endpoint. No connection is made
// until Connect is called.
func NewSession(config Config) *Session {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	return &Session{
		config:   config,
		dial:     defaultDial,
		joined:   make(map[string]struct{}),
		handlers: make(map[string][]handlerEntry),
	}
}

// defaultDial opens a WebSocket connection with the bearer token attached to
// the upgrade request.
func defaultDial(ctx context.Context, url, token string) (net.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(header),
	}
	conn, _, _, err := dialer.Dial(ctx, url)
	return conn, err
}

// SetDialFunc replaces the connection factory. Intended for tests.
func (s *Session) SetDialFunc(dial DialFunc) {
	s.mu.Lock()
	s.dial = dial
	s.mu.Unlock()
}

// SetStateHandler registers the callback invoked on every state transition.
// It replaces any previous handler.
func (s *Session) SetStateHandler(h StateHandler) {
	s.mu.Lock()
	s.onState = h
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the connection, authenticating with the given bearer token.
// It returns true on a successful handshake and false on ordinary
// connectivity failure (invalid token, unreachable host, timeout); it never
// returns an error for those. Calling Connect while already connected tears
// down the existing connection first. A failed attempt schedules a
// backoff-delayed retry unless the retry budget is exhausted.
func (s *Session) Connect(ctx context.Context, token string) bool {
	s.mu.Lock()
	s.teardownLocked()
	s.stopped = false
	s.token = token
	s.gen++
	gen := s.gen
	notify := s.setStateLocked(StateConnecting)
	dial := s.dial
	s.mu.Unlock()
	notify()

	dialCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	conn, err := dial(dialCtx, s.config.URL, token)

	s.mu.Lock()

	if s.gen != gen || s.stopped {
		// A newer Connect or a Disconnect raced us; discard this result.
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return false
	}

	if err != nil {
		log.Printf("transport: connect failed: %v", err)
		notify = s.setStateLocked(StateDisconnected)
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		notify()
		return false
	}

	s.conn = conn
	s.attempt = 0
	notify = s.setStateLocked(StateConnected)
	metrics.Connected.Set(1)

	go s.readLoop(conn, gen)
	go s.pingLoop(conn, gen)

	rooms := make([]string, 0, len(s.joined))
	for roomID := range s.joined {
		rooms = append(rooms, roomID)
	}
	s.mu.Unlock()

	// Restore membership for every room the caller is observing.
	for _, roomID := range rooms {
		s.emit(conn, protocol.TypeJoinRoom, protocol.JoinRoomEvent{RoomID: roomID})
	}

	notify()
	return true
}

// Disconnect closes the connection deterministically, cancels any scheduled
// reconnection, and forgets the tracked room set so a later Connect with a
// different user's token cannot re-join the previous user's rooms. Safe to
// call when already disconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.stopped = true
	s.gen++
	s.attempt = 0
	s.joined = make(map[string]struct{})
	s.teardownLocked()
	notify := s.setStateLocked(StateDisconnected)
	s.mu.Unlock()
	notify()
}

// teardownLocked closes the current connection and cancels a pending retry.
// Callers must hold mu.
func (s *Session) teardownLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	metrics.Connected.Set(0)
}

// setStateLocked updates the state and returns the notification to run once
// mu has been released. Invoking the handler outside the lock keeps state
// notifications ordered while letting the handler call back into the session.
func (s *Session) setStateLocked(state State) func() {
	if s.state == state {
		return func() {}
	}
	s.state = state
	h := s.onState
	if h == nil {
		return func() {}
	}
	return func() { h(state) }
}

// JoinRoom starts observing a room. The join intent is emitted immediately
// when connected and re-emitted automatically after every reconnect. While
// disconnected the room is only recorded; membership is restored on the next
// successful connect.
func (s *Session) JoinRoom(roomID string) {
	s.mu.Lock()
	s.joined[roomID] = struct{}{}
	var conn net.Conn
	if s.state == StateConnected {
		conn = s.conn
	}
	s.mu.Unlock()

	if conn != nil {
		s.emit(conn, protocol.TypeJoinRoom, protocol.JoinRoomEvent{RoomID: roomID})
	}
}

// LeaveRoom stops observing a room. A no-op while disconnected beyond
// removing the room from the tracked set.
func (s *Session) LeaveRoom(roomID string) {
	s.mu.Lock()
	delete(s.joined, roomID)
	var conn net.Conn
	if s.state == StateConnected {
		conn = s.conn
	}
	s.mu.Unlock()

	if conn != nil {
		s.emit(conn, protocol.TypeLeaveRoom, protocol.LeaveRoomEvent{RoomID: roomID})
	}
}

// JoinedRooms returns a snapshot of the rooms currently being observed.
func (s *Session) JoinedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]string, 0, len(s.joined))
	for roomID := range s.joined {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// Send emits an event if connected. It returns false immediately when the
// session is not connected or the write fails, with no buffering, so callers
// can apply their own fallback path.
func (s *Session) Send(evtType string, payload interface{}) bool {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return false
	}
	return s.emit(conn, evtType, payload)
}

// emit marshals and writes one client event to conn. Only writeMu is held
// across the network write: a peer that stops draining stalls the writer, not
// every other session method waiting on mu. A write racing a teardown simply
// fails against the closed connection.
func (s *Session) emit(conn net.Conn, evtType string, payload interface{}) bool {
	data, err := protocol.NewClientEvent(evtType, payload)
	if err != nil {
		log.Printf("transport: failed to build %q event: %v", evtType, err)
		return false
	}

	s.writeMu.Lock()
	err = wsutil.WriteClientMessage(conn, ws.OpText, data)
	s.writeMu.Unlock()
	if err != nil {
		log.Printf("transport: write %q failed: %v", evtType, err)
		return false
	}
	return true
}

// On registers a handler for a server event type. Multiple handlers per type
// are supported and invoked in registration order. The returned Subscription
// is the token for Off.
func (s *Session) On(evtType string, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	sub := Subscription{evtType: evtType, id: s.nextSub}
	s.handlers[evtType] = append(s.handlers[evtType], handlerEntry{id: sub.id, fn: h})
	return sub
}

// Off removes a previously registered handler. Unknown subscriptions are
// ignored.
func (s *Session) Off(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.handlers[sub.evtType]
	for i, e := range entries {
		if e.id == sub.id {
			s.handlers[sub.evtType] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// readLoop reads server frames until the connection drops, parsing each into
// a typed event and dispatching it to registered handlers in order.
func (s *Session) readLoop(conn net.Conn, gen int) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			s.handleDrop(gen, err)
			return
		}

		evtType, evt, err := protocol.ParseServerEvent(data)
		if err != nil {
			log.Printf("transport: dropping unparseable event: %v", err)
			continue
		}

		s.dispatch(evtType, evt)
	}
}

// dispatch invokes the handlers registered for evtType. Handlers are copied
// under the lock and invoked outside it so they may call back into the
// session.
func (s *Session) dispatch(evtType string, evt interface{}) {
	s.mu.Lock()
	entries := make([]handlerEntry, len(s.handlers[evtType]))
	copy(entries, s.handlers[evtType])
	s.mu.Unlock()

	for _, e := range entries {
		e.fn(evt)
	}
}

// pingLoop sends keepalive ping frames so intermediaries do not reap the
// idle connection. Write errors are left for the read loop to observe.
func (s *Session) pingLoop(conn net.Conn, gen int) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		stale := s.gen != gen || s.conn != conn
		s.mu.Unlock()
		if stale {
			return
		}

		s.writeMu.Lock()
		err := ws.WriteFrame(conn, ws.MaskFrame(ws.NewPingFrame(nil)))
		s.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// handleDrop reacts to a read failure: if this connection is still current
// and the drop was not caller-initiated, it transitions to disconnected and
// schedules a reconnect.
func (s *Session) handleDrop(gen int, err error) {
	s.mu.Lock()

	if s.gen != gen || s.stopped {
		// A newer connection superseded this one, or the drop was
		// caller-initiated and already handled.
		s.mu.Unlock()
		return
	}

	log.Printf("transport: connection dropped: %v", err)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	metrics.Connected.Set(0)
	notify := s.setStateLocked(StateDisconnected)
	s.scheduleReconnectLocked()
	s.mu.Unlock()
	notify()
}

// scheduleReconnectLocked arms the retry timer if one is not already pending
// and the attempt budget is not exhausted. Callers must hold mu.
func (s *Session) scheduleReconnectLocked() {
	if s.stopped || s.retry != nil {
		return
	}
	if s.config.MaxReconnectAttempts > 0 && s.attempt >= s.config.MaxReconnectAttempts {
		log.Printf("transport: giving up after %d reconnect attempts", s.attempt)
		return
	}

	delay := ReconnectDelay(s.attempt)
	s.attempt++
	metrics.ReconnectsTotal.Inc()
	log.Printf("transport: reconnecting in %s (attempt %d)", delay, s.attempt)

	s.retry = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.retry = nil
		stopped := s.stopped
		token := s.token
		s.mu.Unlock()
		if stopped {
			return
		}
		s.Connect(context.Background(), token)
	})
}
