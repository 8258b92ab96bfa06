// Package chatapi is the typed client for the chat REST API. It wraps the
// raw HTTP surface (room listing/creation, paginated history, message
// creation) behind methods returning domain structs, and converts every
// failure into a classified *APIError.
package chatapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/swear-shop/supportchat/internal/chat"
	"github.com/swear-shop/supportchat/internal/metrics"
)

// DefaultTimeout bounds every REST request. Timeouts are reported as
// KindNetwork errors, eligible for caller-driven retry.
const DefaultTimeout = 10 * time.Second

// TokenFunc supplies the current bearer token. Token acquisition and refresh
// are owned by the auth collaborator; this client only attaches the value.
type TokenFunc func() string

// Config holds REST client settings.
type Config struct {
	BaseURL string        // e.g. "https://api.example.com"
	Timeout time.Duration // zero means DefaultTimeout
}

// Client is the chat REST API client. It is safe for concurrent use.
type Client struct {
	http  *resty.Client
	token TokenFunc
}

// New creates a Client for the given base URL and token source.
func New(cfg Config, token TokenFunc) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			metrics.RequestLatency.Observe(resp.Time().Seconds())
			return nil
		})

	return &Client{http: http, token: token}
}

// errBody is the error payload shape the chat API uses for non-2xx responses.
type errBody struct {
	Message string `json:"message"`
}

// request prepares a resty request with the bearer header and error capture.
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token()).
		SetError(&errBody{})
}

// check converts a resty response/error pair into a typed *APIError, or nil
// when the request succeeded.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return &APIError{Kind: KindNetwork, Err: err}
	}
	if resp.IsError() {
		msg := ""
		if body, ok := resp.Error().(*errBody); ok {
			msg = body.Message
		}
		if msg == "" {
			msg = resp.Status()
		}
		return &APIError{
			Kind:       classify(resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Message:    msg,
		}
	}
	return nil
}

// ListMyRooms fetches the full room list visible to the current user.
func (c *Client) ListMyRooms(ctx context.Context) ([]chat.ChatRoom, error) {
	var out struct {
		ChatRooms []chat.ChatRoom `json:"chatRooms"`
	}

	resp, err := c.request(ctx).
		SetResult(&out).
		Get("/chat/rooms/my-rooms")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.ChatRooms, nil
}

// CreateRoom opens a new support conversation.
func (c *Client) CreateRoom(ctx context.Context, subject, category, priority string) (chat.ChatRoom, error) {
	var out struct {
		ChatRoom chat.ChatRoom `json:"chatRoom"`
	}

	resp, err := c.request(ctx).
		SetBody(map[string]string{
			"subject":  subject,
			"category": category,
			"priority": priority,
		}).
		SetResult(&out).
		Post("/chat/rooms")
	if err := check(resp, err); err != nil {
		return chat.ChatRoom{}, err
	}
	return out.ChatRoom, nil
}

// GetRoom fetches a single room by ID.
func (c *Client) GetRoom(ctx context.Context, roomID string) (chat.ChatRoom, error) {
	var out struct {
		Room chat.ChatRoom `json:"room"`
	}

	resp, err := c.request(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/chat/rooms/%s", roomID))
	if err := check(resp, err); err != nil {
		return chat.ChatRoom{}, err
	}
	return out.Room, nil
}

// UpdateRoomStatus transitions a room's status. The only transition the app
// initiates itself is the customer closing their own ticket; everything else
// arrives as a live event.
func (c *Client) UpdateRoomStatus(ctx context.Context, roomID, status string) (chat.ChatRoom, error) {
	var out struct {
		Room chat.ChatRoom `json:"room"`
	}

	resp, err := c.request(ctx).
		SetBody(map[string]string{"status": status}).
		SetResult(&out).
		Put(fmt.Sprintf("/chat/rooms/%s/status", roomID))
	if err := check(resp, err); err != nil {
		return chat.ChatRoom{}, err
	}
	return out.Room, nil
}

// ListMessages fetches one page of a room's message history. Pages are
// 1-based; limit is the page size.
func (c *Client) ListMessages(ctx context.Context, roomID string, page, limit int) (chat.MessagePage, error) {
	var out struct {
		Messages   []chat.ChatMessage `json:"messages"`
		Pagination struct {
			HasMore bool `json:"hasMore"`
		} `json:"pagination"`
	}

	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"page":  fmt.Sprintf("%d", page),
			"limit": fmt.Sprintf("%d", limit),
		}).
		SetResult(&out).
		Get(fmt.Sprintf("/chat/rooms/%s/messages", roomID))
	if err := check(resp, err); err != nil {
		return chat.MessagePage{}, err
	}
	return chat.MessagePage{Messages: out.Messages, HasMore: out.Pagination.HasMore}, nil
}

// CreateMessage sends a message through the REST fallback path. The created
// message (with its server-assigned ID) is returned so it can flow through
// the same merge path as a live push.
func (c *Client) CreateMessage(ctx context.Context, roomID, content, msgType, role string, metadata map[string]string) (chat.ChatMessage, error) {
	var out struct {
		Message chat.ChatMessage `json:"message"`
	}

	resp, err := c.request(ctx).
		SetBody(map[string]interface{}{
			"roomId":   roomID,
			"content":  content,
			"type":     msgType,
			"role":     role,
			"metadata": metadata,
		}).
		SetResult(&out).
		Post("/chat/messages")
	if err := check(resp, err); err != nil {
		return chat.ChatMessage{}, err
	}
	return out.Message, nil
}
