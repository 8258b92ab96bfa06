package chat

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // matches the server-side frame limit
	MaxTextChars    = 2000
)

// ValidateOutgoing checks a message before it is handed to either delivery
// path. The server enforces the same limits; rejecting locally avoids a
// round trip for input the server would refuse anyway.
func ValidateOutgoing(content, msgType string) error {
	switch msgType {
	case MessageText, MessageImage:
	default:
		return fmt.Errorf("unsupported message type %q", msgType)
	}
	if len(content) == 0 {
		return fmt.Errorf("message content is empty")
	}
	if len(content) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(content) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
