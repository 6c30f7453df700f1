package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeEngine serves the conversation start endpoint, the activity posting
// endpoint, and the websocket stream.
type fakeEngine struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu     sync.Mutex
	posted []Activity
	stream chan activitySet

	srv *httptest.Server
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	f := &fakeEngine{t: t, stream: make(chan activitySet, 8)}
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations", f.handleStart)
	mux.HandleFunc("/conversations/conv-1/activities", f.handlePost)
	mux.HandleFunc("/stream", f.handleStream)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeEngine) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("Authorization") != "Bearer engine-secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	streamURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/stream"
	_ = json.NewEncoder(w).Encode(startConversationResponse{
		ConversationID: "conv-1",
		Token:          "conv-token",
		StreamURL:      streamURL,
	})
}

func (f *fakeEngine) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer conv-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var activity Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.posted = append(f.posted, activity)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeEngine) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for set := range f.stream {
		if err := conn.WriteJSON(set); err != nil {
			return
		}
	}
}

func (f *fakeEngine) postedActivities() []Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Activity(nil), f.posted...)
}

func waitConnected(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not connect in time")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected session error: %v", err)
	}
}

func TestSession_ConnectAndPost(t *testing.T) {
	t.Parallel()

	f := newFakeEngine(t)
	c := NewClient(f.srv.URL, "engine-secret", nil)

	s := c.StartSession("u1", "ID#u1", nil)
	defer s.Close()
	waitConnected(t, s)

	if err := s.PostText(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	posted := f.postedActivities()
	if len(posted) != 1 {
		t.Fatalf("expected one posted activity, got %d", len(posted))
	}
	if posted[0].Type != ActivityMessage || posted[0].Text != "hello" {
		t.Fatalf("unexpected activity: %+v", posted[0])
	}
	if posted[0].From.ID != "u1" || posted[0].From.Name != "ID#u1" {
		t.Fatalf("unexpected author: %+v", posted[0].From)
	}
}

func TestSession_SetUserNameAppliesToPosts(t *testing.T) {
	t.Parallel()

	f := newFakeEngine(t)
	c := NewClient(f.srv.URL, "engine-secret", nil)

	s := c.StartSession("u1", "ID#u1", nil)
	defer s.Close()
	waitConnected(t, s)

	s.SetUserName("Ada Lovelace")
	if err := s.PostText(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	posted := f.postedActivities()
	if posted[0].From.Name != "Ada Lovelace" {
		t.Fatalf("unexpected author name: %q", posted[0].From.Name)
	}
}

func TestSession_StreamDeliversBotActivities(t *testing.T) {
	t.Parallel()

	f := newFakeEngine(t)
	c := NewClient(f.srv.URL, "engine-secret", nil)

	received := make(chan Activity, 8)
	s := c.StartSession("u1", "ID#u1", func(activity Activity) {
		received <- activity
	})
	defer s.Close()
	waitConnected(t, s)

	f.stream <- activitySet{
		Activities: []Activity{
			// The user's own activity must be filtered out.
			{Type: ActivityMessage, Text: "my own", From: ChannelAccount{ID: "u1"}},
			{Type: ActivityMessage, Text: "bot reply", From: ChannelAccount{ID: "bot"}},
		},
		Watermark: "1",
	}

	select {
	case activity := <-received:
		if activity.Text != "bot reply" {
			t.Fatalf("unexpected activity: %+v", activity)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no activity received in time")
	}

	select {
	case activity := <-received:
		t.Fatalf("unexpected extra activity: %+v", activity)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_PostBeforeConnected(t *testing.T) {
	t.Parallel()

	// A server that never answers the start request leaves the session
	// unestablished.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "engine-secret", nil)
	s := c.StartSession("u1", "ID#u1", nil)
	defer s.Close()

	<-s.Connected()
	if s.Err() == nil {
		t.Fatal("expected establishment error")
	}
	if err := s.Post(context.Background(), Activity{Type: ActivityMessage, Text: "hi"}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
