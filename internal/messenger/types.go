// Package messenger implements the Facebook Messenger platform surface:
// webhook payload types, request signature verification, event
// classification, and the Graph API send client.
package messenger

import "encoding/json"

// WebhookPayload is the top-level body of a webhook POST. Events from
// multiple pages may be batched into a single delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events of one page. Events the page receives as a
// standby (secondary) app arrive under Standby instead of Messaging.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging,omitempty"`
	Standby   []MessagingEvent `json:"standby,omitempty"`
}

// MessagingEvent is a single event addressed to the page. Exactly one of
// the optional payload fields is populated; EventKind classification keys
// off which one.
type MessagingEvent struct {
	Sender    Party `json:"sender"`
	Recipient Party `json:"recipient"`
	Timestamp int64 `json:"timestamp"`

	Message        *Message        `json:"message,omitempty"`
	Postback       *Postback       `json:"postback,omitempty"`
	Optin          *Optin          `json:"optin,omitempty"`
	Delivery       *Delivery       `json:"delivery,omitempty"`
	Read           *Read           `json:"read,omitempty"`
	AccountLinking *AccountLinking `json:"account_linking,omitempty"`
	PassThread     *ThreadControl  `json:"pass_thread_control,omitempty"`
	TakeThread     *ThreadControl  `json:"take_thread_control,omitempty"`
}

type Party struct {
	ID string `json:"id"`
}

type Message struct {
	MID         string          `json:"mid,omitempty"`
	Text        string          `json:"text,omitempty"`
	QuickReply  *QuickReplyHit  `json:"quick_reply,omitempty"`
	Attachments []RawAttachment `json:"attachments,omitempty"`
	IsEcho      bool            `json:"is_echo,omitempty"`
	AppID       int64           `json:"app_id,omitempty"`
}

// QuickReplyHit is the echo of a tapped quick reply inside a message event.
type QuickReplyHit struct {
	Payload string `json:"payload"`
}

// RawAttachment keeps inbound attachment payloads opaque; the bridge only
// logs them.
type RawAttachment struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Postback struct {
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type Optin struct {
	Ref string `json:"ref,omitempty"`
}

type Delivery struct {
	MIDs      []string `json:"mids,omitempty"`
	Watermark int64    `json:"watermark"`
}

type Read struct {
	Watermark int64 `json:"watermark"`
}

type AccountLinking struct {
	Status            string `json:"status"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
}

// ThreadControl carries pass_thread_control and take_thread_control events.
type ThreadControl struct {
	NewOwnerAppID      json.Number `json:"new_owner_app_id,omitempty"`
	PreviousOwnerAppID json.Number `json:"previous_owner_app_id,omitempty"`
	Metadata           string      `json:"metadata,omitempty"`
}

// Outbound send types.

// Recipient addresses an outbound message.
type Recipient struct {
	ID string `json:"id"`
}

// SendMessage is the message part of a send request.
type SendMessage struct {
	Text         string          `json:"text,omitempty"`
	Attachment   *Attachment     `json:"attachment,omitempty"`
	QuickReplies []QuickReply    `json:"quick_replies,omitempty"`
	Metadata     string          `json:"metadata,omitempty"`
}

type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title,omitempty"`
	Payload     string `json:"payload,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

// AttachmentPayload covers the template and media payload shapes the bridge
// emits.
type AttachmentPayload struct {
	TemplateType string    `json:"template_type,omitempty"`
	Text         string    `json:"text,omitempty"`
	Elements     []Element `json:"elements,omitempty"`
	Buttons      []Button  `json:"buttons,omitempty"`
	URL          string    `json:"url,omitempty"`
}

// Element is one card of a generic template carousel.
type Element struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	ItemURL  string   `json:"item_url,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Sender actions.
const (
	ActionTypingOn  = "typing_on"
	ActionTypingOff = "typing_off"
	ActionMarkSeen  = "mark_seen"
)

// Profile is the public profile of a platform user.
type Profile struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	ProfilePic string  `json:"profile_pic"`
	Locale     string  `json:"locale"`
	Timezone   float64 `json:"timezone"`
	Gender     string  `json:"gender"`
}

// Name joins the profile's name parts, dropping empty ones.
func (p Profile) Name() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}
