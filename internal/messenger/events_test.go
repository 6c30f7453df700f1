package messenger

import (
	"context"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ev   MessagingEvent
		want EventKind
	}{
		{"message", MessagingEvent{Message: &Message{Text: "hi"}}, EventMessage},
		{"postback", MessagingEvent{Postback: &Postback{Payload: "p"}}, EventPostback},
		{"optin", MessagingEvent{Optin: &Optin{Ref: "r"}}, EventOptin},
		{"delivery", MessagingEvent{Delivery: &Delivery{Watermark: 1}}, EventDelivery},
		{"read", MessagingEvent{Read: &Read{Watermark: 1}}, EventRead},
		{"account linking", MessagingEvent{AccountLinking: &AccountLinking{Status: "linked"}}, EventAccountLinking},
		{"pass thread control", MessagingEvent{PassThread: &ThreadControl{}}, EventPassThread},
		{"take thread control", MessagingEvent{TakeThread: &ThreadControl{}}, EventTakeThread},
		{"empty", MessagingEvent{}, EventUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.ev); got != tc.want {
				t.Fatalf("unexpected kind: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	var messages, postbacks []Event
	d.Handle(EventMessage, func(_ context.Context, ev Event) error {
		messages = append(messages, ev)
		return nil
	})
	d.Handle(EventPostback, func(_ context.Context, ev Event) error {
		postbacks = append(postbacks, ev)
		return nil
	})

	d.DispatchPayload(context.Background(), WebhookPayload{
		Object: "page",
		Entry: []Entry{
			{
				ID: "page-1",
				Messaging: []MessagingEvent{
					{Sender: Party{ID: "u1"}, Message: &Message{Text: "hello"}},
					{Sender: Party{ID: "u1"}, Postback: &Postback{Payload: "tap"}},
					{Sender: Party{ID: "u1"}, Delivery: &Delivery{Watermark: 7}},
				},
			},
		},
	})

	if len(messages) != 1 || messages[0].Message.Text != "hello" {
		t.Fatalf("unexpected message events: %+v", messages)
	}
	if messages[0].PageID != "page-1" {
		t.Fatalf("unexpected page id: %q", messages[0].PageID)
	}
	if len(postbacks) != 1 || postbacks[0].Postback.Payload != "tap" {
		t.Fatalf("unexpected postback events: %+v", postbacks)
	}
}

func TestDispatcher_IgnoresNonPageObject(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	called := false
	d.Handle(EventMessage, func(_ context.Context, ev Event) error {
		called = true
		return nil
	})

	d.DispatchPayload(context.Background(), WebhookPayload{
		Object: "user",
		Entry: []Entry{
			{Messaging: []MessagingEvent{{Message: &Message{Text: "hi"}}}},
		},
	})

	if called {
		t.Fatal("expected non-page payload to be ignored")
	}
}

func TestDispatcher_HandlerErrorDoesNotStopRemaining(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	var seen []string
	d.Handle(EventMessage, func(_ context.Context, ev Event) error {
		seen = append(seen, ev.Message.Text)
		if ev.Message.Text == "boom" {
			return errors.New("handler failure")
		}
		return nil
	})

	d.DispatchPayload(context.Background(), WebhookPayload{
		Object: "page",
		Entry: []Entry{
			{Messaging: []MessagingEvent{
				{Message: &Message{Text: "boom"}},
				{Message: &Message{Text: "after"}},
			}},
		},
	})

	if len(seen) != 2 || seen[1] != "after" {
		t.Fatalf("expected both events handled, got %v", seen)
	}
}

func TestDispatcher_MarksStandbyEvents(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	var events []Event
	d.Handle(EventMessage, func(_ context.Context, ev Event) error {
		events = append(events, ev)
		return nil
	})

	d.DispatchPayload(context.Background(), WebhookPayload{
		Object: "page",
		Entry: []Entry{
			{
				Messaging: []MessagingEvent{{Sender: Party{ID: "u1"}, Message: &Message{Text: "direct"}}},
				Standby:   []MessagingEvent{{Sender: Party{ID: "u2"}, Message: &Message{Text: "watched"}}},
			},
		},
	})

	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	if events[0].Standby {
		t.Fatal("expected messaging event not marked standby")
	}
	if !events[1].Standby {
		t.Fatal("expected standby event marked standby")
	}
}

func TestDispatcher_UnhandledKindDropped(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	// No handlers registered; dispatch must not panic.
	d.DispatchPayload(context.Background(), WebhookPayload{
		Object: "page",
		Entry: []Entry{
			{Messaging: []MessagingEvent{{Message: &Message{Text: "hi"}}, {}}},
		},
	})
}
