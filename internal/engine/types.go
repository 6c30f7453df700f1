// Package engine is the client boundary to the conversation engine: the
// activity and card types it speaks, and a session client that streams bot
// replies over a websocket.
package engine

import "encoding/json"

// Activity types.
const (
	ActivityMessage = "message"
	ActivityEvent   = "event"
)

// EventSwitchToLiveContact is the event activity the engine emits when the
// bot decides the user should talk to a human.
const EventSwitchToLiveContact = "switchToLiveContact"

// Card attachment content types.
const (
	CardHero      = "application/vnd.microsoft.card.hero"
	CardThumbnail = "application/vnd.microsoft.card.thumbnail"
)

// Activity is one unit of conversation traffic, inbound or outbound.
type Activity struct {
	Type         string           `json:"type"`
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name,omitempty"`
	Text         string           `json:"text,omitempty"`
	From         ChannelAccount   `json:"from"`
	Conversation *ConversationRef `json:"conversation,omitempty"`
	Attachments  []Attachment     `json:"attachments,omitempty"`
	Value        json.RawMessage  `json:"value,omitempty"`
}

type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ConversationRef struct {
	ID string `json:"id"`
}

// Attachment carries a rich card on a message activity.
type Attachment struct {
	ContentType string      `json:"contentType"`
	Content     CardContent `json:"content"`
}

// CardContent is the shared shape of hero and thumbnail cards.
type CardContent struct {
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Text     string       `json:"text,omitempty"`
	Images   []CardImage  `json:"images,omitempty"`
	Buttons  []CardAction `json:"buttons,omitempty"`
}

type CardImage struct {
	URL string `json:"url"`
}

// CardAction types the bridge understands. Anything else is dropped.
const (
	ActionOpenURL = "openUrl"
	ActionIMBack  = "imBack"
)

type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
	Value string `json:"value,omitempty"`
	Image string `json:"image,omitempty"`
}
