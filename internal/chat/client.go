package chat

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/swear-shop/supportchat/internal/protocol"
	"github.com/swear-shop/supportchat/internal/ratelimit"
	"github.com/swear-shop/supportchat/internal/transport"
)

// LiveSession is the transport surface the client needs. *transport.Session
// satisfies it; tests substitute fakes.
type LiveSession interface {
	Connect(ctx context.Context, token string) bool
	Disconnect()
	JoinRoom(roomID string)
	LeaveRoom(roomID string)
	Send(evtType string, payload interface{}) bool
	On(evtType string, h transport.Handler) transport.Subscription
	SetStateHandler(h transport.StateHandler)
}

// API is the full REST surface the client consumes. *chatapi.Client
// satisfies it.
type API interface {
	RoomAPI
	HistoryAPI
	MessageAPI
}

// ReadModel is the consolidated state exposed to the UI. It is a snapshot:
// the UI renders it and issues intents; it never mutates chat state directly.
type ReadModel struct {
	Rooms              []ChatRoom
	ActiveRoomID       string
	ActiveRoomMessages []ChatMessage
	IsConnected        bool
	HasMoreMessages    bool
	TypingUsers        []string // user IDs currently typing in the active room
	LastError          error
}

// Client owns all chat state mutation. Server events flow in from the
// transport session, REST results flow in from the intents below, and both
// funnel through the directory and history merge paths; the UI only ever
// sees the resulting ReadModel. One Client exists per logged-in session.
type Client struct {
	session     LiveSession
	directory   *Directory
	history     *History
	deliver     *Deliverer
	typingLimit *ratelimit.Limiter

	mu        sync.Mutex
	connected bool
	lastErr   error
	typing    map[string]map[string]struct{} // roomID -> set of typing user IDs

	updates chan struct{}
}

// NewClient wires a Client to the given transport session and REST API. Event
// handlers are registered immediately; no connection is made until Login.
func NewClient(session LiveSession, api API) *Client {
	c := &Client{
		session:     session,
		directory:   NewDirectory(api),
		history:     NewHistory(api),
		typingLimit: ratelimit.NewLimiter(ratelimit.RuleTyping),
		typing:      make(map[string]map[string]struct{}),
		updates:     make(chan struct{}, 1),
	}
	c.deliver = NewDeliverer(session, api, RoleUser, func(msg ChatMessage) {
		if c.history.AppendFallback(msg) {
			c.directory.Touch(msg.RoomID, msg.CreatedAt)
		}
		c.notify()
	})

	session.On(protocol.TypeNewMessage, c.onNewMessage)
	session.On(protocol.TypeRoomStatusUpdated, c.onRoomStatusUpdated)
	session.On(protocol.TypeRoomJoined, c.onRoomJoined)
	session.On(protocol.TypeUserJoined, c.onUserJoined)
	session.On(protocol.TypeUserTyping, c.onUserTyping)
	session.On(protocol.TypeUserStoppedTyping, c.onUserStoppedTyping)
	session.On(protocol.TypeError, c.onChannelError)
	session.SetStateHandler(c.onConnState)

	return c
}

// Login opens the live channel with the given bearer token. Returns whether
// the handshake succeeded; on failure the transport keeps retrying with
// backoff in the background.
func (c *Client) Login(ctx context.Context, token string) bool {
	return c.session.Connect(ctx, token)
}

// Logout tears down the live channel and clears every piece of room and
// message state so nothing survives into another user's session.
func (c *Client) Logout() {
	c.session.Disconnect()
	c.directory.Reset()
	c.history.Reset()

	c.mu.Lock()
	c.typing = make(map[string]map[string]struct{})
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
}

// LoadRooms refreshes the room directory from REST.
func (c *Client) LoadRooms(ctx context.Context) ([]ChatRoom, error) {
	rooms, err := c.directory.LoadRooms(ctx)
	c.recordErr(err)
	c.notify()
	return rooms, err
}

// CreateRoom opens a new support conversation and starts observing it.
func (c *Client) CreateRoom(ctx context.Context, subject, category, priority string) (ChatRoom, error) {
	room, err := c.directory.CreateRoom(ctx, subject, category, priority)
	if err != nil {
		c.recordErr(err)
		return ChatRoom{}, err
	}

	c.session.JoinRoom(room.RoomID)
	c.notify()
	return room, nil
}

// OpenRoom makes roomID the active conversation: joins it on the live
// channel, resets its pagination cursor, and fetches the first history page.
// Cached messages render immediately even if the fetch fails.
func (c *Client) OpenRoom(ctx context.Context, roomID string) error {
	c.history.OpenRoom(roomID)
	c.session.JoinRoom(roomID)
	c.notify()

	_, err := c.history.FetchPage(ctx, roomID, 1)
	c.recordErr(err)
	c.notify()
	return err
}

// LeaveRoom stops observing a room. If it was the active room, the active
// pointer is cleared; cached messages are kept.
func (c *Client) LeaveRoom(roomID string) {
	c.session.LeaveRoom(roomID)
	if c.history.ActiveRoom() == roomID {
		c.history.CloseActive()
	}

	c.mu.Lock()
	delete(c.typing, roomID)
	c.mu.Unlock()
	c.typingLimit.Forget(roomID)
	c.notify()
}

// LoadOlder fetches the next (older) history page for the active room. It
// reports false when there is nothing further to load.
func (c *Client) LoadOlder(ctx context.Context) (bool, error) {
	fetched, err := c.history.FetchNext(ctx)
	c.recordErr(err)
	c.notify()
	return fetched, err
}

// SendMessage delivers a message to the active room, socket-first with REST
// fallback. Returns a *DeliveryError when both paths fail; no retry is
// attempted here.
func (c *Client) SendMessage(ctx context.Context, content, msgType string) error {
	roomID := c.history.ActiveRoom()
	if roomID == "" {
		return fmt.Errorf("chat: no active room")
	}

	err := c.deliver.Send(ctx, roomID, content, msgType)
	c.recordErr(err)
	return err
}

// CloseRoom closes the customer's own ticket via REST and merges the
// resulting room state.
func (c *Client) CloseRoom(ctx context.Context, roomID string) error {
	_, err := c.directory.CloseRoom(ctx, roomID)
	c.recordErr(err)
	c.notify()
	return err
}

// SetTyping emits a typing indicator for the active room. Best effort: while
// disconnected the intent is simply dropped.
func (c *Client) SetTyping(typing bool) {
	roomID := c.history.ActiveRoom()
	if roomID == "" {
		return
	}

	if typing {
		// Throttled per room; a stop is never throttled so an indicator
		// cannot get stuck on the other side.
		if !c.typingLimit.Allow(roomID) {
			return
		}
		c.session.Send(protocol.TypeTypingStart, protocol.TypingStartEvent{RoomID: roomID})
	} else {
		c.session.Send(protocol.TypeTypingStop, protocol.TypingStopEvent{RoomID: roomID})
	}
}

// Updates returns a channel that receives a (coalesced) signal whenever the
// read model may have changed. The UI re-renders by calling Snapshot.
func (c *Client) Updates() <-chan struct{} {
	return c.updates
}

// Snapshot assembles the current read model.
func (c *Client) Snapshot() ReadModel {
	activeRoom := c.history.ActiveRoom()

	c.mu.Lock()
	connected := c.connected
	lastErr := c.lastErr
	var typingUsers []string
	for userID := range c.typing[activeRoom] {
		typingUsers = append(typingUsers, userID)
	}
	c.mu.Unlock()
	sort.Strings(typingUsers)

	return ReadModel{
		Rooms:              c.directory.Rooms(),
		ActiveRoomID:       activeRoom,
		ActiveRoomMessages: c.history.Messages(activeRoom),
		IsConnected:        connected,
		HasMoreMessages:    activeRoom != "" && c.history.HasMore(activeRoom),
		TypingUsers:        typingUsers,
		LastError:          lastErr,
	}
}

// ---------------------------------------------------------------------------
// Transport event handlers. These run serialized on the read loop goroutine.
// ---------------------------------------------------------------------------

func (c *Client) onNewMessage(evt interface{}) {
	e, ok := evt.(protocol.NewMessageEvent)
	if !ok {
		return
	}

	msg := ChatMessage{
		ID:         e.ID,
		RoomID:     e.RoomID,
		SenderID:   e.SenderID,
		SenderName: e.SenderName,
		Role:       e.Role,
		MsgType:    e.MsgType,
		Content:    e.Content,
		CreatedAt:  time.UnixMilli(e.CreatedAt),
		Metadata:   e.Metadata,
	}

	if c.history.AppendLive(msg) {
		c.directory.Touch(msg.RoomID, msg.CreatedAt)
	}

	// A message from a participant supersedes their typing indicator.
	c.mu.Lock()
	if set, ok := c.typing[e.RoomID]; ok {
		delete(set, e.SenderID)
	}
	c.mu.Unlock()

	c.notify()
}

func (c *Client) onRoomStatusUpdated(evt interface{}) {
	e, ok := evt.(protocol.RoomStatusUpdatedEvent)
	if !ok {
		return
	}
	if !c.directory.ApplyStatusUpdate(e.RoomID, e.Status) {
		// Status event for a room we have never loaded, e.g. a ticket staff
		// opened on the user's behalf. Fetch it instead of dropping it.
		go func() {
			if _, err := c.directory.RefreshRoom(context.Background(), e.RoomID); err != nil {
				log.Printf("chat: refresh room %s: %v", e.RoomID, err)
				return
			}
			c.notify()
		}()
		return
	}
	c.notify()
}

func (c *Client) onRoomJoined(evt interface{}) {
	if e, ok := evt.(protocol.RoomJoinedEvent); ok {
		log.Printf("chat: joined room %s", e.RoomID)
	}
}

func (c *Client) onUserJoined(evt interface{}) {
	e, ok := evt.(protocol.UserJoinedEvent)
	if !ok {
		return
	}
	log.Printf("chat: %s (%s) joined room %s", e.UserName, e.Role, e.RoomID)
	c.notify()
}

func (c *Client) onUserTyping(evt interface{}) {
	e, ok := evt.(protocol.UserTypingEvent)
	if !ok {
		return
	}

	c.mu.Lock()
	set, ok := c.typing[e.RoomID]
	if !ok {
		set = make(map[string]struct{})
		c.typing[e.RoomID] = set
	}
	set[e.UserID] = struct{}{}
	c.mu.Unlock()
	c.notify()
}

func (c *Client) onUserStoppedTyping(evt interface{}) {
	e, ok := evt.(protocol.UserStoppedTypingEvent)
	if !ok {
		return
	}

	c.mu.Lock()
	if set, ok := c.typing[e.RoomID]; ok {
		delete(set, e.UserID)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Client) onChannelError(evt interface{}) {
	e, ok := evt.(protocol.ErrorEvent)
	if !ok {
		return
	}
	c.recordErr(fmt.Errorf("chat: channel error %s: %s", e.Code, e.Message))
	c.notify()
}

func (c *Client) onConnState(state transport.State) {
	c.mu.Lock()
	c.connected = state == transport.StateConnected
	if c.connected {
		// Connectivity errors are recovered; stale ones should not linger.
		c.lastErr = nil
	}
	c.mu.Unlock()
	c.notify()
}

// ---------------------------------------------------------------------------

// recordErr stores a non-nil error as the read model's LastError.
func (c *Client) recordErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// notify signals the UI that the read model may have changed. Signals
// coalesce: a slow consumer sees at most one pending update.
func (c *Client) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
