package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/swear-shop/supportchat/internal/metrics"
)

// DefaultPageSize is the history page size requested from the REST API.
const DefaultPageSize = 20

// MessagePage is one page of room history plus the server's cursor state.
type MessagePage struct {
	Messages []ChatMessage
	HasMore  bool
}

// HistoryAPI is the REST surface the message store needs.
type HistoryAPI interface {
	ListMessages(ctx context.Context, roomID string, page, limit int) (MessagePage, error)
}

// roomHistory holds one room's merged message list and pagination cursor.
type roomHistory struct {
	messages []ChatMessage       // ascending by CreatedAt
	ids      map[string]struct{} // dedup index over message IDs
	page     int                 // last successfully fetched page, 0 = none
	hasMore  bool
}

func newRoomHistory() *roomHistory {
	return &roomHistory{
		ids:     make(map[string]struct{}),
		hasMore: true,
	}
}

// insert adds msg preserving ascending CreatedAt order, or reports false if
// the ID is already present. Messages with equal timestamps keep arrival
// order (stable merge).
func (rh *roomHistory) insert(msg ChatMessage) bool {
	if _, dup := rh.ids[msg.ID]; dup {
		return false
	}
	rh.ids[msg.ID] = struct{}{}

	// First index whose timestamp is strictly later than the incoming one;
	// inserting there keeps equal timestamps in arrival order.
	idx := sort.Search(len(rh.messages), func(i int) bool {
		return rh.messages[i].CreatedAt.After(msg.CreatedAt)
	})

	rh.messages = append(rh.messages, ChatMessage{})
	copy(rh.messages[idx+1:], rh.messages[idx:])
	rh.messages[idx] = msg
	return true
}

// History is the per-room message store: ordered, deduplicated message lists
// merged from paginated REST history and live pushes, plus the pagination
// cursor for each room. It is scoped to one logged-in session and must be
// Reset on logout. All methods are safe for concurrent use.
type History struct {
	api      HistoryAPI
	pageSize int

	mu     sync.RWMutex
	rooms  map[string]*roomHistory
	active string // currently viewed room, "" when none
}

// NewHistory creates an empty History backed by the given API.
func NewHistory(api HistoryAPI) *History {
	return &History{
		api:      api,
		pageSize: DefaultPageSize,
		rooms:    make(map[string]*roomHistory),
	}
}

// roomLocked returns the room's history, creating it on first use. Callers
// must hold mu.
func (h *History) roomLocked(roomID string) *roomHistory {
	rh, ok := h.rooms[roomID]
	if !ok {
		rh = newRoomHistory()
		h.rooms[roomID] = rh
	}
	return rh
}

// OpenRoom makes roomID the actively viewed room and resets its pagination
// cursor to the first page with more assumed available. Already-fetched
// messages are kept, so returning to a cached room renders instantly.
func (h *History) OpenRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.active = roomID
	rh := h.roomLocked(roomID)
	rh.page = 0
	rh.hasMore = true
}

// CloseActive clears the active room pointer without touching cached state.
func (h *History) CloseActive() {
	h.mu.Lock()
	h.active = ""
	h.mu.Unlock()
}

// ActiveRoom returns the currently viewed room ID, or "" when none.
func (h *History) ActiveRoom() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// FetchPage fetches one history page for roomID and merges it into the
// room's list, skipping any message ID already present. The fetch is tagged
// with the room it was issued for: if the user has switched rooms by the time
// the response lands, the result is discarded so a slow response cannot
// contaminate another room's view. The cursor advances only on a successful,
// committed fetch.
func (h *History) FetchPage(ctx context.Context, roomID string, page int) (MessagePage, error) {
	// Suspension point: no lock is held across the network call, and the
	// active room may change before it completes.
	fetched, err := h.api.ListMessages(ctx, roomID, page, h.pageSize)
	if err != nil {
		return MessagePage{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active != roomID {
		// Stale fetch: the user moved on. Nothing is committed.
		return fetched, nil
	}

	rh := h.roomLocked(roomID)
	for _, msg := range fetched.Messages {
		if rh.insert(msg) {
			metrics.MessagesMerged.WithLabelValues("history").Inc()
		} else {
			metrics.MessagesDeduplicated.Inc()
		}
	}
	rh.page = page
	rh.hasMore = fetched.HasMore

	return fetched, nil
}

// FetchNext fetches the page after the last committed one for the active
// room. It reports false without a network call when no room is open or the
// server has no more history.
func (h *History) FetchNext(ctx context.Context) (bool, error) {
	h.mu.RLock()
	roomID := h.active
	var page int
	if roomID != "" {
		rh := h.rooms[roomID]
		if rh == nil || !rh.hasMore {
			h.mu.RUnlock()
			return false, nil
		}
		page = rh.page + 1
	}
	h.mu.RUnlock()

	if roomID == "" {
		return false, nil
	}

	if _, err := h.FetchPage(ctx, roomID, page); err != nil {
		return false, err
	}
	return true, nil
}

// AppendLive inserts a message arriving from the live channel. Re-delivery
// of an already-present ID is a no-op. It reports whether the message was
// inserted so the caller can touch the room directory.
func (h *History) AppendLive(msg ChatMessage) bool {
	return h.append(msg, "live")
}

// AppendFallback inserts a message created through the REST send fallback.
// Dedup by ID makes this safe even if the server also echoes the message
// over the live channel.
func (h *History) AppendFallback(msg ChatMessage) bool {
	return h.append(msg, "fallback")
}

func (h *History) append(msg ChatMessage, source string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	inserted := h.roomLocked(msg.RoomID).insert(msg)
	if inserted {
		metrics.MessagesMerged.WithLabelValues(source).Inc()
	} else {
		metrics.MessagesDeduplicated.Inc()
	}
	return inserted
}

// Messages returns the room's current message list in chronological
// ascending order. The returned slice is a copy safe for the caller to keep.
func (h *History) Messages(roomID string) []ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rh, ok := h.rooms[roomID]
	if !ok {
		return []ChatMessage{}
	}
	out := make([]ChatMessage, len(rh.messages))
	copy(out, rh.messages)
	return out
}

// HasMore reports whether older history is still available for the room.
// Rooms never fetched report true: there may be history we have not seen.
func (h *History) HasMore(roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rh, ok := h.rooms[roomID]
	if !ok {
		return true
	}
	return rh.hasMore
}

// Reset clears all message state. Called on logout so nothing leaks into a
// subsequent user's session.
func (h *History) Reset() {
	h.mu.Lock()
	h.rooms = make(map[string]*roomHistory)
	h.active = ""
	h.mu.Unlock()
}
