package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	httpTimeout = 15 * time.Second

	// Websocket stream tuning.
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamMaxMessage = 1 << 20
)

// ErrNotConnected is returned by Post when the session's conversation has
// not been established yet or failed to establish.
var ErrNotConnected = errors.New("engine: session not connected")

// Client starts engine sessions. One session holds one conversation.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
	secret     string
	log        *slog.Logger
}

func NewClient(baseURL, secret string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		dialer:     websocket.DefaultDialer,
		baseURL:    baseURL,
		secret:     secret,
		log:        log.With(slog.String("component", "engine")),
	}
}

// ActivityHandler receives bot activities from the session stream.
type ActivityHandler func(Activity)

// Session is one conversation with the engine. The conversation is
// established in the background; callers wait on Connected before posting.
type Session struct {
	client     *Client
	userID     string
	userName   string
	onActivity ActivityHandler

	connected chan struct{}

	mu             sync.Mutex
	conversationID string
	token          string
	conn           *websocket.Conn
	connectErr     error
	closed         bool

	log *slog.Logger
}

// StartSession creates a session for one platform user and begins
// establishing its conversation in the background. The handler is invoked
// from the stream goroutine for every activity not authored by the user.
func (c *Client) StartSession(userID, userName string, handler ActivityHandler) *Session {
	s := &Session{
		client:     c,
		userID:     userID,
		userName:   userName,
		onActivity: handler,
		connected:  make(chan struct{}),
		log:        c.log.With(slog.String("user_id", userID)),
	}
	go s.run()
	return s
}

// Connected is closed once the conversation and its activity stream are
// established. If establishment fails the channel is closed too; check Err.
func (s *Session) Connected() <-chan struct{} {
	return s.connected
}

// Err reports why establishment failed, if it did.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectErr
}

// SetUserName updates the display name attached to posted activities.
func (s *Session) SetUserName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userName = name
}

type startConversationResponse struct {
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
	StreamURL      string `json:"streamUrl"`
}

func (s *Session) run() {
	defer close(s.connected)

	start, err := s.startConversation()
	if err != nil {
		s.fail(fmt.Errorf("start conversation: %w", err))
		return
	}

	conn, _, err := s.client.dialer.Dial(start.StreamURL, nil)
	if err != nil {
		s.fail(fmt.Errorf("dial activity stream: %w", err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conversationID = start.ConversationID
	s.token = start.Token
	s.conn = conn
	s.mu.Unlock()

	s.log.Info("engine conversation established",
		slog.String("conversation_id", start.ConversationID))

	go s.pingLoop(conn)
	go s.readPump(conn)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.connectErr = err
	s.mu.Unlock()
	s.log.Error("engine session failed", slog.Any("error", err))
}

func (s *Session) startConversation() (startConversationResponse, error) {
	var out startConversationResponse
	req, err := http.NewRequest(http.MethodPost, s.client.baseURL+"/conversations", nil)
	if err != nil {
		return out, err
	}
	req.Header.Set("Authorization", "Bearer "+s.client.secret)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return out, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

// activitySet is one frame of the activity stream. Empty frames are
// keepalives.
type activitySet struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark"`
}

func (s *Session) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(streamMaxMessage)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !s.isClosed() {
				s.log.Warn("engine stream closed", slog.Any("error", err))
			}
			return
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		var set activitySet
		if err := json.Unmarshal(data, &set); err != nil {
			s.log.Warn("undecodable stream frame", slog.Any("error", err))
			continue
		}
		for _, activity := range set.Activities {
			if activity.From.ID == s.userID {
				continue
			}
			if s.onActivity != nil {
				s.onActivity(activity)
			}
		}
	}
}

func (s *Session) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if s.isClosed() {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PostText posts a message activity authored by the session's user.
func (s *Session) PostText(ctx context.Context, text string) error {
	s.mu.Lock()
	userName := s.userName
	s.mu.Unlock()
	return s.Post(ctx, Activity{
		Type: ActivityMessage,
		Text: text,
		From: ChannelAccount{ID: s.userID, Name: userName},
	})
}

// Post delivers one activity into the conversation. The session must be
// connected.
func (s *Session) Post(ctx context.Context, activity Activity) error {
	s.mu.Lock()
	conversationID, token := s.conversationID, s.token
	s.mu.Unlock()
	if conversationID == "" {
		return ErrNotConnected
	}

	payload, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/conversations/%s/activities", s.client.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("post activity: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Close tears down the stream. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
	}
}
