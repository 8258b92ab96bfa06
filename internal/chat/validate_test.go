package chat

import (
	"strings"
	"testing"
)

func TestValidateOutgoing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		msgType string
		wantErr bool
	}{
		{"valid text", "hello", MessageText, false},
		{"valid image", "https://cdn.example.com/a.png", MessageImage, false},
		{"empty", "", MessageText, true},
		{"unknown type", "hello", "video", true},
		{"at char limit", strings.Repeat("a", MaxTextChars), MessageText, false},
		{"over char limit", strings.Repeat("a", MaxTextChars+1), MessageText, true},
		{"over byte limit", strings.Repeat("é", MaxMessageBytes/2+1), MessageText, true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), MessageText, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutgoing(tt.content, tt.msgType)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOutgoing(%q, %q) error = %v, wantErr %v",
					tt.content, tt.msgType, err, tt.wantErr)
			}
		})
	}
}
