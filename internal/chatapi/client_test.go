package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL}, func() string { return "test-token" })
}

func TestListMyRooms(t *testing.T) {
	var gotAuth string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/rooms/my-rooms" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chatRooms":[
			{"roomId":"r-1","subject":"late delivery","status":"open","lastMessageAt":"2024-05-01T10:00:00Z"},
			{"roomId":"r-2","subject":"refund","status":"assigned","lastMessageAt":"2024-05-02T10:00:00Z"}
		]}`))
	})

	rooms, err := client.ListMyRooms(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].RoomID != "r-1" || rooms[0].Subject != "late delivery" {
		t.Errorf("unexpected first room: %+v", rooms[0])
	}
}

func TestCreateRoom_Conflict(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"an open room already exists"}`))
	})

	_, err := client.CreateRoom(context.Background(), "subject", "order", "normal")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsConflict(err) {
		t.Errorf("expected conflict kind, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "an open room already exists" {
		t.Errorf("expected server message preserved, got %q", apiErr.Message)
	}
}

func TestAuthExpired(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ListMyRooms(context.Background())
	if !IsAuthExpired(err) {
		t.Fatalf("expected auth-expired error, got %v", err)
	}
}

func TestNetworkError(t *testing.T) {
	// Point at a closed server so the dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := New(Config{BaseURL: url, Timeout: 2 * time.Second}, func() string { return "t" })
	_, err := client.ListMyRooms(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestListMessages(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/rooms/r-1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("expected page=2, got %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("expected limit=20, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[
			{"id":"m-1","roomId":"r-1","content":"hello","createdAt":"2024-05-01T10:00:00Z"}
		],"pagination":{"hasMore":true}}`))
	})

	page, err := client.ListMessages(context.Background(), "r-1", 2, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(page.Messages))
	}
	if page.Messages[0].ID != "m-1" {
		t.Errorf("unexpected message id: %s", page.Messages[0].ID)
	}
	if !page.HasMore {
		t.Error("expected hasMore=true")
	}
}

func TestCreateMessage(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["roomId"] != "r-1" || body["content"] != "hi" || body["type"] != "text" {
			t.Errorf("unexpected body: %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"id":"m-99","roomId":"r-1","content":"hi","role":"user","createdAt":"2024-05-01T10:00:00Z"}}`))
	})

	msg, err := client.CreateMessage(context.Background(), "r-1", "hi", "text", "user",
		map[string]string{"clientRef": "ref-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "m-99" {
		t.Errorf("expected server-assigned id m-99, got %q", msg.ID)
	}
}

func TestKindString(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindNetwork, "network"},
		{KindAuthExpired, "auth_expired"},
		{KindValidation, "validation"},
		{KindConflict, "conflict"},
		{KindServer, "server"},
	}
	for _, tc := range cases {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("Kind(%d).String(): expected %q, got %q", tc.kind, tc.want, got)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{401, KindAuthExpired},
		{409, KindConflict},
		{400, KindValidation},
		{422, KindValidation},
		{500, KindServer},
		{503, KindServer},
	}
	for _, tc := range cases {
		if got := classify(tc.status); got != tc.want {
			t.Errorf("classify(%d): expected %v, got %v", tc.status, tc.want, got)
		}
	}
}
