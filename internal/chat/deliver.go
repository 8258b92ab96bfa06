package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/swear-shop/supportchat/internal/metrics"
	"github.com/swear-shop/supportchat/internal/protocol"
)

// LiveSender is the live-channel surface the coordinator needs.
// *transport.Session satisfies it.
type LiveSender interface {
	Send(evtType string, payload interface{}) bool
}

// MessageAPI is the REST surface for the send fallback path.
type MessageAPI interface {
	CreateMessage(ctx context.Context, roomID, content, msgType, role string, metadata map[string]string) (ChatMessage, error)
}

// DeliveryError is returned when both the live and the fallback path failed
// to carry an outgoing message. The coordinator performs no retries itself;
// resending is the caller's decision.
type DeliveryError struct {
	RoomID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("chat: delivery to room %s failed on both paths: %v", e.RoomID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Deliverer sends each outgoing message through exactly one path at a time:
// the live channel when connected, otherwise the REST create-message call.
// Neither path appends the message locally: the socket path relies on the
// server's echo event and the fallback path hands the REST response to the
// accept sink, so both converge on the same ID-deduplicated merge.
type Deliverer struct {
	live   LiveSender
	api    MessageAPI
	role   string
	accept func(ChatMessage) // sink for REST-created messages
}

// NewDeliverer creates a coordinator sending with the given role. The accept
// sink receives messages created via the REST fallback; it is typically the
// message store's AppendLive.
func NewDeliverer(live LiveSender, api MessageAPI, role string, accept func(ChatMessage)) *Deliverer {
	return &Deliverer{live: live, api: api, role: role, accept: accept}
}

// Send delivers one message. The payload carries a fresh clientRef so that a
// socket echo and a REST response for the same logical message reconcile to
// one entry. Content is validated before either path is tried. Returns nil
// once exactly one path accepted the message, or a *DeliveryError when both
// failed.
func (d *Deliverer) Send(ctx context.Context, roomID, content, msgType string) error {
	if err := ValidateOutgoing(content, msgType); err != nil {
		return err
	}

	metadata := map[string]string{"clientRef": uuid.NewString()}

	if d.live.Send(protocol.TypeSendMessage, protocol.SendMessageEvent{
		RoomID:   roomID,
		Content:  content,
		MsgType:  msgType,
		Role:     d.role,
		Metadata: metadata,
	}) {
		metrics.SendsTotal.WithLabelValues("socket").Inc()
		return nil
	}

	// Not connected (or the write failed): fall back to REST, exactly once.
	msg, err := d.api.CreateMessage(ctx, roomID, content, msgType, d.role, metadata)
	if err != nil {
		return &DeliveryError{RoomID: roomID, Err: err}
	}

	metrics.SendsTotal.WithLabelValues("rest").Inc()
	if d.accept != nil {
		d.accept(msg)
	}
	return nil
}
