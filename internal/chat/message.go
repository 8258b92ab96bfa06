package chat

import "time"

// Sender roles.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Message content types.
const (
	MessageText  = "text"
	MessageImage = "image"
)

// ChatMessage is a single message within a room. ID is globally unique and is
// the sole deduplication key; CreatedAt is the canonical ordering key. Once
// stored a message is immutable.
type ChatMessage struct {
	ID         string            `json:"id"`
	RoomID     string            `json:"roomId"`
	SenderID   string            `json:"senderId"`
	SenderName string            `json:"senderName"`
	Role       string            `json:"role"`
	MsgType    string            `json:"type"`
	Content    string            `json:"content"` // text body or image URL
	CreatedAt  time.Time         `json:"createdAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
