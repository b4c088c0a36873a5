package dialogue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClient_SendMessage_AuthenticatesAndDecodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			t.Fatalf("expected basic auth alice/secret, got %q/%q ok=%v", user, pass, ok)
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "hello" {
			t.Fatalf("expected text hello, got %q", req.Text)
		}
		resp := sendMessageResponse{ID: 42, CreatedAt: time.Unix(1000, 0).UTC()}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil)
	out, err := c.SendMessage(context.Background(), Credentials{Username: "alice", Password: "secret"}, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ID != 42 {
		t.Fatalf("expected id 42, got %d", out.ID)
	}
}

func TestHTTPClient_GetUnreadMessages_ParsesBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("expected limit=5, got %q", got)
		}
		resp := unreadResponse{
			Messages: []unreadMessage{
				{ID: 1, Author: "bob", Text: "hi", CreatedAt: time.Unix(1, 0).UTC()},
			},
			RemainingUnread: 3,
		}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil)
	batch, err := c.GetUnreadMessages(context.Background(), Credentials{Username: "alice", Password: "secret"}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Messages) != 1 || batch.Messages[0].Text != "hi" {
		t.Fatalf("unexpected messages: %+v", batch.Messages)
	}
	if batch.RemainingUnread != 3 {
		t.Fatalf("expected remaining_unread 3, got %d", batch.RemainingUnread)
	}
}

func TestHTTPClient_Heartbeat_FailureReturnsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil)
	err := c.Heartbeat(context.Background(), Credentials{Username: "alice", Password: "secret"})
	if err == nil {
		t.Fatal("expected error from failing heartbeat endpoint")
	}
}
