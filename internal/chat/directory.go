package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RoomAPI is the REST surface the directory needs. *chatapi.Client satisfies
// it; tests substitute fakes.
type RoomAPI interface {
	ListMyRooms(ctx context.Context) ([]ChatRoom, error)
	CreateRoom(ctx context.Context, subject, category, priority string) (ChatRoom, error)
	GetRoom(ctx context.Context, roomID string) (ChatRoom, error)
	UpdateRoomStatus(ctx context.Context, roomID, status string) (ChatRoom, error)
}

// Directory is the authoritative, deduplicated set of rooms visible to the
// current user, ordered by most recent activity. It is scoped to one
// logged-in session and must be Reset on logout. All methods are safe for
// concurrent use.
type Directory struct {
	api RoomAPI

	mu    sync.RWMutex
	rooms map[string]ChatRoom // keyed by RoomID
}

// NewDirectory creates an empty Directory backed by the given API.
func NewDirectory(api RoomAPI) *Directory {
	return &Directory{
		api:   api,
		rooms: make(map[string]ChatRoom),
	}
}

// LoadRooms fetches the full room list and merges it into the existing set by
// roomId: fetched rooms overwrite matching entries, unseen rooms are added,
// and rooms absent from the response are kept (rooms are never deleted
// client-side). Safe to call repeatedly; an unchanged server response leaves
// the directory identical. On failure nothing is committed.
func (d *Directory) LoadRooms(ctx context.Context) ([]ChatRoom, error) {
	fetched, err := d.api.ListMyRooms(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	for _, room := range fetched {
		d.rooms[room.RoomID] = room
	}
	d.mu.Unlock()

	return d.Rooms(), nil
}

// CreateRoom opens a new support conversation and inserts it at the front of
// the ordering (its last activity is now).
func (d *Directory) CreateRoom(ctx context.Context, subject, category, priority string) (ChatRoom, error) {
	room, err := d.api.CreateRoom(ctx, subject, category, priority)
	if err != nil {
		return ChatRoom{}, err
	}

	if room.LastMessageAt.IsZero() {
		room.LastMessageAt = time.Now()
	}

	d.mu.Lock()
	d.rooms[room.RoomID] = room
	d.mu.Unlock()

	return room, nil
}

// RefreshRoom re-fetches a single room and merges it into the set.
func (d *Directory) RefreshRoom(ctx context.Context, roomID string) (ChatRoom, error) {
	room, err := d.api.GetRoom(ctx, roomID)
	if err != nil {
		return ChatRoom{}, err
	}

	d.mu.Lock()
	d.rooms[room.RoomID] = room
	d.mu.Unlock()

	return room, nil
}

// CloseRoom performs the one status transition the customer may initiate:
// closing their own ticket. The server's resulting room state is merged back.
func (d *Directory) CloseRoom(ctx context.Context, roomID string) (ChatRoom, error) {
	room, err := d.api.UpdateRoomStatus(ctx, roomID, StatusClosed)
	if err != nil {
		return ChatRoom{}, err
	}

	d.mu.Lock()
	d.rooms[room.RoomID] = room
	d.mu.Unlock()

	return room, nil
}

// ApplyStatusUpdate applies a live status event to one room in memory. The
// room's last activity is refreshed; unrelated rooms are untouched. Reports
// false for rooms not in the set so the caller can fetch them.
func (d *Directory) ApplyStatusUpdate(roomID, status string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	room.Status = status
	room.LastMessageAt = time.Now()
	d.rooms[roomID] = room
	return true
}

// Touch records message activity for a room, moving it to the front of the
// ordering. Timestamps older than the room's current activity are ignored so
// a late history page cannot demote a room.
func (d *Directory) Touch(roomID string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return
	}
	if at.After(room.LastMessageAt) {
		room.LastMessageAt = at
		d.rooms[roomID] = room
	}
}

// Get returns one room by ID.
func (d *Directory) Get(roomID string) (ChatRoom, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[roomID]
	return room, ok
}

// Rooms returns all rooms sorted descending by last activity.
func (d *Directory) Rooms() []ChatRoom {
	return d.RoomsByStatus("")
}

// RoomsByStatus returns rooms matching the given status, sorted descending by
// last activity. An empty filter matches everything. Pure read, no network.
func (d *Directory) RoomsByStatus(status string) []ChatRoom {
	d.mu.RLock()
	out := make([]ChatRoom, 0, len(d.rooms))
	for _, room := range d.rooms {
		if status == "" || room.Status == status {
			out = append(out, room)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

// Reset clears all room state. Called on logout so nothing leaks into a
// subsequent user's session.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.rooms = make(map[string]ChatRoom)
	d.mu.Unlock()
}
