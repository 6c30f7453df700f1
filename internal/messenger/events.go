package messenger

import (
	"context"
	"log/slog"
)

// EventKind names the classified type of a webhook messaging event.
type EventKind string

const (
	EventMessage        EventKind = "message"
	EventPostback       EventKind = "postback"
	EventOptin          EventKind = "optin"
	EventDelivery       EventKind = "delivery"
	EventRead           EventKind = "read"
	EventAccountLinking EventKind = "account_linking"
	EventPassThread     EventKind = "pass_thread_control"
	EventTakeThread     EventKind = "take_thread_control"
	EventUnknown        EventKind = "unknown"
)

// Classify determines an event's kind from which payload field is set.
// Checks run in a fixed order so an event carrying several fields (which
// the platform does not send) classifies deterministically.
func Classify(ev MessagingEvent) EventKind {
	switch {
	case ev.Optin != nil:
		return EventOptin
	case ev.Message != nil:
		return EventMessage
	case ev.Delivery != nil:
		return EventDelivery
	case ev.Postback != nil:
		return EventPostback
	case ev.Read != nil:
		return EventRead
	case ev.AccountLinking != nil:
		return EventAccountLinking
	case ev.PassThread != nil:
		return EventPassThread
	case ev.TakeThread != nil:
		return EventTakeThread
	default:
		return EventUnknown
	}
}

// Event is a classified messaging event handed to dispatch handlers.
// Standby marks events received while another app owns the thread.
type Event struct {
	Kind    EventKind
	PageID  string
	Standby bool
	MessagingEvent
}

// Handler processes one classified event. Errors are logged by the
// dispatcher; they never affect the webhook acknowledgement.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher routes classified events to registered handlers through an
// explicit table keyed by EventKind. Unhandled kinds are logged and
// dropped.
type Dispatcher struct {
	log      *slog.Logger
	handlers map[EventKind]Handler
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		log:      log.With(slog.String("component", "dispatcher")),
		handlers: make(map[EventKind]Handler),
	}
}

// Handle registers the handler for a kind, replacing any previous one.
// Registration happens during wiring, before the webhook starts serving.
func (d *Dispatcher) Handle(kind EventKind, h Handler) {
	d.handlers[kind] = h
}

// DispatchPayload classifies and dispatches every event in a webhook
// delivery. Payloads whose object is not "page" are ignored. Handler
// errors are logged per event and do not stop the remaining events.
func (d *Dispatcher) DispatchPayload(ctx context.Context, payload WebhookPayload) {
	if payload.Object != "page" {
		d.log.Debug("ignoring non-page webhook object", slog.String("object", payload.Object))
		return
	}
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			d.dispatch(ctx, Event{Kind: Classify(ev), PageID: entry.ID, MessagingEvent: ev})
		}
		for _, ev := range entry.Standby {
			d.dispatch(ctx, Event{Kind: Classify(ev), PageID: entry.ID, Standby: true, MessagingEvent: ev})
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	h, ok := d.handlers[ev.Kind]
	if !ok {
		d.log.Warn("unhandled webhook event",
			slog.String("kind", string(ev.Kind)),
			slog.String("sender", ev.Sender.ID),
			slog.Bool("standby", ev.Standby))
		return
	}
	if err := h(ctx, ev); err != nil {
		d.log.Error("webhook event handler failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("sender", ev.Sender.ID),
			slog.Any("error", err))
	}
}
