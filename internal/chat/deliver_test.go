package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/swear-shop/supportchat/internal/protocol"
)

// fakeLiveSender records Send calls and returns a scripted result.
type fakeLiveSender struct {
	connected bool
	sent      []protocol.SendMessageEvent
}

func (f *fakeLiveSender) Send(evtType string, payload interface{}) bool {
	if evt, ok := payload.(protocol.SendMessageEvent); ok {
		f.sent = append(f.sent, evt)
	}
	return f.connected
}

// fakeMessageAPI records CreateMessage calls.
type fakeMessageAPI struct {
	calls   int
	err     error
	created ChatMessage
	lastRef string
}

func (f *fakeMessageAPI) CreateMessage(ctx context.Context, roomID, content, msgType, role string, metadata map[string]string) (ChatMessage, error) {
	f.calls++
	f.lastRef = metadata["clientRef"]
	if f.err != nil {
		return ChatMessage{}, f.err
	}
	msg := f.created
	msg.RoomID = roomID
	msg.Content = content
	msg.Metadata = metadata
	return msg, nil
}

func TestDeliver_SocketPathSkipsREST(t *testing.T) {
	live := &fakeLiveSender{connected: true}
	api := &fakeMessageAPI{}
	d := NewDeliverer(live, api, RoleUser, nil)

	if err := d.Send(context.Background(), "r-1", "hello", MessageText); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(live.sent) != 1 {
		t.Fatalf("expected 1 socket send, got %d", len(live.sent))
	}
	if api.calls != 0 {
		t.Fatalf("expected no REST fallback when socket accepted, got %d calls", api.calls)
	}

	evt := live.sent[0]
	if evt.RoomID != "r-1" || evt.Content != "hello" || evt.Role != RoleUser {
		t.Errorf("unexpected payload: %+v", evt)
	}
	if evt.Metadata["clientRef"] == "" {
		t.Error("expected a clientRef in the payload metadata")
	}
}

func TestDeliver_FallbackExactlyOnce(t *testing.T) {
	live := &fakeLiveSender{connected: false}
	api := &fakeMessageAPI{created: ChatMessage{ID: "m-9", Role: RoleUser}}

	var accepted []ChatMessage
	d := NewDeliverer(live, api, RoleUser, func(msg ChatMessage) {
		accepted = append(accepted, msg)
	})

	if err := d.Send(context.Background(), "r-1", "hello", MessageText); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if api.calls != 1 {
		t.Fatalf("expected exactly one REST fallback call, got %d", api.calls)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected the REST message handed to the accept sink, got %d", len(accepted))
	}
	if accepted[0].ID != "m-9" {
		t.Errorf("unexpected accepted message: %+v", accepted[0])
	}
	if api.lastRef == "" {
		t.Error("expected the clientRef forwarded to the REST call")
	}
}

func TestDeliver_BothPathsFail(t *testing.T) {
	live := &fakeLiveSender{connected: false}
	restErr := errors.New("rest down")
	api := &fakeMessageAPI{err: restErr}
	d := NewDeliverer(live, api, RoleUser, nil)

	err := d.Send(context.Background(), "r-1", "hello", MessageText)
	if err == nil {
		t.Fatal("expected delivery error, got nil")
	}

	var dErr *DeliveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected *DeliveryError, got %T", err)
	}
	if dErr.RoomID != "r-1" {
		t.Errorf("unexpected room in error: %s", dErr.RoomID)
	}
	if !errors.Is(err, restErr) {
		t.Error("expected the underlying REST error to be wrapped")
	}

	// No retries: still exactly one REST attempt.
	if api.calls != 1 {
		t.Fatalf("expected exactly one REST attempt, got %d", api.calls)
	}
}

func TestDeliver_InvalidContentNeverLeaves(t *testing.T) {
	live := &fakeLiveSender{connected: true}
	api := &fakeMessageAPI{}
	d := NewDeliverer(live, api, RoleUser, nil)

	if err := d.Send(context.Background(), "r-1", "", MessageText); err == nil {
		t.Fatal("expected validation error for empty content")
	}

	if len(live.sent) != 0 {
		t.Errorf("expected no socket send for rejected content, got %d", len(live.sent))
	}
	if api.calls != 0 {
		t.Errorf("expected no REST call for rejected content, got %d", api.calls)
	}
}
