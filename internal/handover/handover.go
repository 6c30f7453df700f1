// Package handover tracks which app owns each user's thread and drives
// thread-control transfers to and from the page inbox.
//
// Ownership state lives in memory only. After a restart every thread is
// assumed bot-owned until platform events say otherwise; the standby repair
// path converges the record back to reality.
package handover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Owner is the recorded owner of a user's thread.
type Owner int

const (
	// BotOwned means this app holds the thread and forwards messages to
	// the engine.
	BotOwned Owner = iota
	// InboxOwned means the page inbox (a human operator) holds the
	// thread; the bridge stays silent.
	InboxOwned
)

func (o Owner) String() string {
	if o == InboxOwned {
		return "inbox"
	}
	return "bot"
}

// Store records thread ownership per user. Unknown users are BotOwned.
type Store interface {
	Owner(userID string) Owner
	SetOwner(userID string, owner Owner)
}

// MemoryStore is the in-memory Store.
type MemoryStore struct {
	mu     sync.Mutex
	owners map[string]Owner
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{owners: make(map[string]Owner)}
}

func (s *MemoryStore) Owner(userID string) Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[userID]
}

func (s *MemoryStore) SetOwner(userID string, owner Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner == BotOwned {
		delete(s.owners, userID)
		return
	}
	s.owners[userID] = owner
}

// controlClient is the slice of the Messenger client the service needs.
type controlClient interface {
	SendText(ctx context.Context, userID, text string) error
	PassThreadControl(ctx context.Context, userID, targetAppID, metadata string) error
}

// Confirmation sent to the user right before control moves to the inbox.
const handoverConfirmation = "Connecting you with a human operator."

// Service executes handovers and keeps the Store consistent with platform
// thread-control events.
type Service struct {
	store      Store
	client     controlClient
	inboxAppID string
	log        *slog.Logger
}

func NewService(store Store, client controlClient, inboxAppID string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:      store,
		client:     client,
		inboxAppID: inboxAppID,
		log:        log.With(slog.String("component", "handover")),
	}
}

// InboxOwned reports whether the user's thread is recorded as held by the
// inbox.
func (s *Service) InboxOwned(userID string) bool {
	return s.store.Owner(userID) == InboxOwned
}

// HandToInbox records inbox ownership, confirms to the user, and passes
// thread control to the inbox app. A thread already recorded as inbox-owned
// is left alone so repeated triggers issue at most one control-plane call.
func (s *Service) HandToInbox(ctx context.Context, userID string) error {
	if s.store.Owner(userID) == InboxOwned {
		s.log.Debug("thread already inbox-owned", slog.String("user_id", userID))
		return nil
	}
	// Record before either network call so forwarding is suppressed the
	// moment the handover starts, even if the pass fails mid-flight.
	s.store.SetOwner(userID, InboxOwned)

	if err := s.client.SendText(ctx, userID, handoverConfirmation); err != nil {
		s.log.Warn("handover confirmation failed",
			slog.String("user_id", userID), slog.Any("error", err))
	}
	if err := s.client.PassThreadControl(ctx, userID, s.inboxAppID, "bridge handover"); err != nil {
		// Keep the InboxOwned record: the pass may still have landed, and
		// staying silent is safer than talking over an operator.
		return fmt.Errorf("hand to inbox: %w", err)
	}
	return nil
}

// ControlReturned handles a pass_thread_control event addressed to this
// app. Control is accepted only for threads we recorded as handed over;
// an unexpected return is logged and ignored.
func (s *Service) ControlReturned(userID string) {
	if s.store.Owner(userID) != InboxOwned {
		s.log.Warn("ignoring returned control for thread not recorded as handed over",
			slog.String("user_id", userID))
		return
	}
	s.store.SetOwner(userID, BotOwned)
	s.log.Info("thread control returned", slog.String("user_id", userID))
}

// ControlTaken handles a take_thread_control event: another app seized the
// thread, so record inbox ownership.
func (s *Service) ControlTaken(userID string) {
	s.store.SetOwner(userID, InboxOwned)
	s.log.Info("thread control taken by another app", slog.String("user_id", userID))
}

// RepairFromStandby reconciles state drift. Receiving a standby event means
// another app owns the thread; if the record still says BotOwned (typically
// after a restart) it is corrected without any control-plane call.
func (s *Service) RepairFromStandby(userID string) {
	if s.store.Owner(userID) == InboxOwned {
		return
	}
	s.store.SetOwner(userID, InboxOwned)
	s.log.Info("repaired thread ownership from standby event",
		slog.String("user_id", userID))
}
