package bridge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pagebridge/pagebridge/internal/engine"
	"github.com/pagebridge/pagebridge/internal/messenger"
)

// How long an inbound message waits for its engine conversation to come up
// before it is dropped.
const connectedWait = 5 * time.Second

// sendClient is the slice of the Messenger client the bridge uses for
// replies.
type sendClient interface {
	Send(ctx context.Context, userID string, msg messenger.SendMessage) error
	SendText(ctx context.Context, userID, text string) error
	SenderAction(ctx context.Context, userID, action string) error
}

// cardTranslator converts engine card attachments to send payloads.
type cardTranslator interface {
	Translate(attach engine.Attachment) (messenger.SendMessage, error)
}

// handoverService is the slice of the handover service the bridge uses.
type handoverService interface {
	InboxOwned(userID string) bool
	HandToInbox(ctx context.Context, userID string) error
	ControlReturned(userID string)
	ControlTaken(userID string)
	RepairFromStandby(userID string)
}

// Bridge routes classified webhook events into engine conversations and
// relays bot activities back to the platform.
type Bridge struct {
	registry      *Registry
	sender        sendClient
	cards         cardTranslator
	handover      handoverService
	escapeKeyword string
	log           *slog.Logger
}

func New(registry *Registry, sender sendClient, cards cardTranslator, ho handoverService, escapeKeyword string, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	b := &Bridge{
		registry:      registry,
		sender:        sender,
		cards:         cards,
		handover:      ho,
		escapeKeyword: escapeKeyword,
		log:           log.With(slog.String("component", "bridge")),
	}
	registry.SetActivityHandler(b.onActivity)
	return b
}

// RegisterHandlers installs the bridge's handlers on the dispatcher. Every
// event kind the platform sends gets an explicit entry.
func (b *Bridge) RegisterHandlers(d *messenger.Dispatcher) {
	d.Handle(messenger.EventMessage, b.handleMessage)
	d.Handle(messenger.EventPostback, b.handlePostback)
	d.Handle(messenger.EventOptin, b.handleOptin)
	d.Handle(messenger.EventDelivery, b.handleDelivery)
	d.Handle(messenger.EventRead, b.handleRead)
	d.Handle(messenger.EventAccountLinking, b.handleAccountLinking)
	d.Handle(messenger.EventPassThread, b.handlePassThread)
	d.Handle(messenger.EventTakeThread, b.handleTakeThread)
}

// eventText extracts the forwardable text of an event. Postback payloads
// win over titles; tapped quick replies win over typed text.
func eventText(ev messenger.Event) string {
	if ev.Postback != nil {
		if ev.Postback.Payload != "" {
			return ev.Postback.Payload
		}
		return ev.Postback.Title
	}
	if ev.Message != nil {
		if ev.Message.QuickReply != nil && ev.Message.QuickReply.Payload != "" {
			return ev.Message.QuickReply.Payload
		}
		return ev.Message.Text
	}
	return ""
}

func (b *Bridge) handleMessage(ctx context.Context, ev messenger.Event) error {
	if ev.Message != nil && ev.Message.IsEcho {
		b.log.Debug("ignoring echo message", slog.String("mid", ev.Message.MID))
		return nil
	}
	if ev.Standby {
		// Another app owns this thread; converge the record, never forward.
		b.handover.RepairFromStandby(ev.Sender.ID)
		return nil
	}
	return b.routeUserText(ctx, ev)
}

func (b *Bridge) handlePostback(ctx context.Context, ev messenger.Event) error {
	if ev.Standby {
		b.handover.RepairFromStandby(ev.Sender.ID)
		return nil
	}
	return b.routeUserText(ctx, ev)
}

func (b *Bridge) routeUserText(ctx context.Context, ev messenger.Event) error {
	userID := ev.Sender.ID
	text := eventText(ev)
	if text == "" {
		b.log.Debug("event carries no forwardable text", slog.String("user_id", userID))
		return nil
	}
	if b.handover.InboxOwned(userID) {
		b.log.Debug("thread inbox-owned, not forwarding", slog.String("user_id", userID))
		return nil
	}
	if strings.TrimSpace(text) == b.escapeKeyword {
		return b.handover.HandToInbox(ctx, userID)
	}
	return b.RouteText(ctx, userID, text)
}

// RouteText forwards one line of user text into the user's engine
// conversation, creating it if needed. A conversation that is not connected
// within the wait window drops the message.
func (b *Bridge) RouteText(ctx context.Context, userID, text string) error {
	conv := b.registry.GetOrCreate(ctx, userID)

	if err := b.sender.SenderAction(ctx, userID, messenger.ActionMarkSeen); err != nil {
		b.log.Debug("mark_seen failed", slog.Any("error", err))
	}
	if err := b.sender.SenderAction(ctx, userID, messenger.ActionTypingOn); err != nil {
		b.log.Debug("typing_on failed", slog.Any("error", err))
	}

	select {
	case <-conv.session.Connected():
	case <-time.After(connectedWait):
		b.log.Warn("conversation not connected in time, dropping message",
			slog.String("user_id", userID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := conv.session.Err(); err != nil {
		b.log.Warn("conversation unavailable, dropping message",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	return conv.session.PostText(ctx, text)
}

// onActivity relays one bot activity to the user. Runs on the session
// stream goroutine.
func (b *Bridge) onActivity(userID string, activity engine.Activity) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch activity.Type {
	case engine.ActivityEvent:
		if activity.Name == engine.EventSwitchToLiveContact {
			if err := b.handover.HandToInbox(ctx, userID); err != nil {
				b.log.Error("engine-requested handover failed",
					slog.String("user_id", userID), slog.Any("error", err))
			}
			return
		}
		b.log.Debug("ignoring engine event",
			slog.String("name", activity.Name), slog.String("user_id", userID))
	case engine.ActivityMessage:
		b.relayMessage(ctx, userID, activity)
	default:
		b.log.Debug("ignoring engine activity",
			slog.String("type", activity.Type), slog.String("user_id", userID))
	}
}

func (b *Bridge) relayMessage(ctx context.Context, userID string, activity engine.Activity) {
	defer func() {
		if err := b.sender.SenderAction(ctx, userID, messenger.ActionTypingOff); err != nil {
			b.log.Debug("typing_off failed", slog.Any("error", err))
		}
	}()

	if len(activity.Attachments) == 0 {
		if activity.Text == "" {
			return
		}
		if err := b.sender.SendText(ctx, userID, activity.Text); err != nil {
			b.log.Error("relay text failed",
				slog.String("user_id", userID), slog.Any("error", err))
		}
		return
	}

	for _, attach := range activity.Attachments {
		msg, err := b.cards.Translate(attach)
		if err != nil {
			b.log.Warn("dropping untranslatable attachment",
				slog.String("user_id", userID), slog.Any("error", err))
			continue
		}
		if err := b.sender.Send(ctx, userID, msg); err != nil {
			b.log.Error("relay card failed",
				slog.String("user_id", userID), slog.Any("error", err))
		}
	}
}

func (b *Bridge) handleOptin(ctx context.Context, ev messenger.Event) error {
	if ev.Standby {
		b.handover.RepairFromStandby(ev.Sender.ID)
		return nil
	}
	b.log.Info("authentication optin",
		slog.String("user_id", ev.Sender.ID), slog.String("ref", ev.Optin.Ref))
	return b.sender.SendText(ctx, ev.Sender.ID, "Authentication successful")
}

func (b *Bridge) handleDelivery(_ context.Context, ev messenger.Event) error {
	if ev.Standby {
		b.handover.RepairFromStandby(ev.Sender.ID)
		return nil
	}
	b.log.Debug("messages delivered",
		slog.String("user_id", ev.Sender.ID),
		slog.Int64("watermark", ev.Delivery.Watermark))
	return nil
}

func (b *Bridge) handleRead(_ context.Context, ev messenger.Event) error {
	if ev.Standby {
		b.handover.RepairFromStandby(ev.Sender.ID)
		return nil
	}
	b.log.Debug("messages read",
		slog.String("user_id", ev.Sender.ID),
		slog.Int64("watermark", ev.Read.Watermark))
	return nil
}

func (b *Bridge) handleAccountLinking(_ context.Context, ev messenger.Event) error {
	if ev.Standby {
		b.handover.RepairFromStandby(ev.Sender.ID)
		return nil
	}
	b.log.Info("account linking",
		slog.String("user_id", ev.Sender.ID),
		slog.String("status", ev.AccountLinking.Status))
	return nil
}

func (b *Bridge) handlePassThread(_ context.Context, ev messenger.Event) error {
	b.handover.ControlReturned(ev.Sender.ID)
	return nil
}

func (b *Bridge) handleTakeThread(_ context.Context, ev messenger.Event) error {
	b.handover.ControlTaken(ev.Sender.ID)
	return nil
}
