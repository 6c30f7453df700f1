// Package bridge connects the Messenger webhook to engine conversations:
// it keeps one conversation per user, forwards user text into the engine,
// and relays bot replies back through the send client.
package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pagebridge/pagebridge/internal/engine"
	"github.com/pagebridge/pagebridge/internal/messenger"
)

// Session is the slice of an engine session the bridge uses.
type Session interface {
	Connected() <-chan struct{}
	Err() error
	PostText(ctx context.Context, text string) error
	SetUserName(name string)
	Close()
}

// StartSessionFunc opens a new engine session for a user. The handler
// receives the bot's activities.
type StartSessionFunc func(userID, userName string, handler engine.ActivityHandler) Session

// profileClient is the slice of the Messenger client the registry uses for
// display names.
type profileClient interface {
	GetProfile(ctx context.Context, userID string) (messenger.Profile, error)
}

// Conversation pairs one platform user with one engine session.
type Conversation struct {
	UserID string

	mu      sync.Mutex
	name    string
	session Session
}

// Name returns the user's display name, which starts as a placeholder and
// is refined once the profile lookup completes.
func (c *Conversation) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Conversation) setName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.session.SetUserName(name)
}

// Registry holds at most one Conversation per user.
type Registry struct {
	startSession StartSessionFunc
	profiles     profileClient
	onActivity   func(userID string, activity engine.Activity)
	log          *slog.Logger

	mu    sync.Mutex
	convs map[string]*Conversation
}

func NewRegistry(start StartSessionFunc, profiles profileClient, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		startSession: start,
		profiles:     profiles,
		log:          log.With(slog.String("component", "registry")),
		convs:        make(map[string]*Conversation),
	}
}

// SetActivityHandler installs the callback for bot activities. Must be set
// during wiring, before conversations are created.
func (r *Registry) SetActivityHandler(h func(userID string, activity engine.Activity)) {
	r.onActivity = h
}

// GetOrCreate returns the user's conversation, creating and registering it
// first if absent. Insertion happens under the registry lock, so two
// concurrent events for a new user still yield a single conversation. The
// profile lookup that replaces the placeholder name runs in the background.
func (r *Registry) GetOrCreate(ctx context.Context, userID string) *Conversation {
	r.mu.Lock()
	if conv, ok := r.convs[userID]; ok {
		r.mu.Unlock()
		return conv
	}

	conv := &Conversation{
		UserID: userID,
		name:   "ID#" + userID,
	}
	conv.session = r.startSession(userID, conv.name, func(activity engine.Activity) {
		if r.onActivity != nil {
			r.onActivity(userID, activity)
		}
	})
	r.convs[userID] = conv
	r.mu.Unlock()

	r.log.Info("conversation created", slog.String("user_id", userID))
	go r.resolveName(conv)
	return conv
}

// Lookup returns the user's conversation without creating one.
func (r *Registry) Lookup(userID string) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[userID]
	return conv, ok
}

func (r *Registry) resolveName(conv *Conversation) {
	profile, err := r.profiles.GetProfile(context.Background(), conv.UserID)
	if err != nil {
		r.log.Warn("profile lookup failed",
			slog.String("user_id", conv.UserID), slog.Any("error", err))
		return
	}
	if name := profile.Name(); name != "" {
		conv.setName(name)
	}
}

// Close tears down every session. Used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.convs {
		conv.session.Close()
	}
}
