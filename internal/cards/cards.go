// Package cards translates engine rich cards into Messenger send payloads.
// Translation is pure: no I/O, no state.
package cards

import (
	"fmt"
	"log/slog"

	"github.com/pagebridge/pagebridge/internal/engine"
	"github.com/pagebridge/pagebridge/internal/messenger"
)

// Placeholder body for cards that carry buttons but no text. Messenger
// rejects empty message text.
const emptyBody = "..."

// Translator converts card attachments. The logger records dropped
// actions; translation itself never fails on them.
type Translator struct {
	log *slog.Logger
}

func NewTranslator(log *slog.Logger) *Translator {
	if log == nil {
		log = slog.Default()
	}
	return &Translator{log: log.With(slog.String("component", "cards"))}
}

// Translate maps one card attachment to a Messenger message. Hero cards
// become text with quick replies; thumbnail cards become a single-element
// generic template. Unknown content types are an error.
func (t *Translator) Translate(attach engine.Attachment) (messenger.SendMessage, error) {
	switch attach.ContentType {
	case engine.CardHero:
		return t.translateHero(attach.Content), nil
	case engine.CardThumbnail:
		return t.translateThumbnail(attach.Content), nil
	default:
		return messenger.SendMessage{}, fmt.Errorf("unsupported card content type %q", attach.ContentType)
	}
}

// Hero card buttons map to quick replies: the button title doubles as the
// tap payload so the reply echoes the choice verbatim.
func (t *Translator) translateHero(content engine.CardContent) messenger.SendMessage {
	text := content.Text
	if text == "" {
		text = emptyBody
	}
	msg := messenger.SendMessage{Text: text}
	for _, button := range content.Buttons {
		msg.QuickReplies = append(msg.QuickReplies, messenger.QuickReply{
			ContentType: "text",
			Title:       button.Title,
			Payload:     button.Title,
			ImageURL:    button.Image,
		})
	}
	return msg
}

func (t *Translator) translateThumbnail(content engine.CardContent) messenger.SendMessage {
	element := messenger.Element{
		Title:    content.Title,
		Subtitle: content.Subtitle,
		Buttons:  t.translateButtons(content.Buttons),
	}
	if len(content.Images) > 0 {
		element.ImageURL = content.Images[0].URL
	}
	return messenger.SendMessage{
		Attachment: &messenger.Attachment{
			Type: "template",
			Payload: messenger.AttachmentPayload{
				TemplateType: "generic",
				Elements:     []messenger.Element{element},
			},
		},
	}
}

// translateButtons maps card actions to template buttons. openUrl becomes
// web_url and imBack becomes postback; every other action type is dropped
// with a log line.
func (t *Translator) translateButtons(actions []engine.CardAction) []messenger.Button {
	var buttons []messenger.Button
	for _, action := range actions {
		title := action.Title
		if title == "" {
			title = action.Text
		}
		switch action.Type {
		case engine.ActionOpenURL:
			buttons = append(buttons, messenger.Button{
				Type:  "web_url",
				Title: title,
				URL:   action.Value,
			})
		case engine.ActionIMBack:
			payload := action.Value
			if payload == "" {
				payload = action.Title
			}
			buttons = append(buttons, messenger.Button{
				Type:    "postback",
				Title:   title,
				Payload: payload,
			})
		default:
			t.log.Warn("dropping unsupported card action", slog.String("type", action.Type))
		}
	}
	return buttons
}
