// Package chat holds the support-chat domain model and the in-memory
// synchronization state: the room directory, the per-room message history,
// the outgoing delivery coordinator, and the client that ties them to the
// live transport.
package chat

import "time"

// Room status values. The status machine is server-authoritative; the client
// only reads states and applies transitions it is told about.
const (
	StatusOpen     = "open"
	StatusAssigned = "assigned"
	StatusResolved = "resolved"
	StatusClosed   = "closed"
)

// ChatRoom represents one support conversation thread between the current
// user and staff. The room record itself is server-authoritative; the client
// requests creation and merges whatever the server returns.
type ChatRoom struct {
	RoomID        string    `json:"roomId"`
	Subject       string    `json:"subject"`
	Category      string    `json:"category"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	AssignedStaff string    `json:"assignedStaff,omitempty"`
}

// IsClosed reports whether the room has reached a terminal status.
func (r *ChatRoom) IsClosed() bool {
	return r.Status == StatusResolved || r.Status == StatusClosed
}
