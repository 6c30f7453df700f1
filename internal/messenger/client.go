package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const clientTimeout = 15 * time.Second

// Client calls the Graph API on behalf of one page: message sends, sender
// actions, thread-control transfers, and profile lookups.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	log         *slog.Logger
}

func NewClient(baseURL, accessToken string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: clientTimeout},
		baseURL:     baseURL,
		accessToken: accessToken,
		log:         log.With(slog.String("component", "messenger_client")),
	}
}

type sendRequest struct {
	Recipient     Recipient    `json:"recipient"`
	MessagingType string       `json:"messaging_type,omitempty"`
	Message       *SendMessage `json:"message,omitempty"`
	SenderAction  string       `json:"sender_action,omitempty"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Send delivers one message to a user.
func (c *Client) Send(ctx context.Context, userID string, msg SendMessage) error {
	var resp sendResponse
	err := c.post(ctx, "/me/messages", sendRequest{
		Recipient:     Recipient{ID: userID},
		MessagingType: "RESPONSE",
		Message:       &msg,
	}, &resp)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	c.log.Debug("message sent",
		slog.String("recipient", resp.RecipientID),
		slog.String("message_id", resp.MessageID))
	return nil
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, userID, text string) error {
	return c.Send(ctx, userID, SendMessage{Text: text})
}

// SenderAction sets a typing indicator or read receipt on the thread.
func (c *Client) SenderAction(ctx context.Context, userID, action string) error {
	err := c.post(ctx, "/me/messages", sendRequest{
		Recipient:    Recipient{ID: userID},
		SenderAction: action,
	}, nil)
	if err != nil {
		return fmt.Errorf("sender action %s: %w", action, err)
	}
	return nil
}

type threadControlRequest struct {
	Recipient   Recipient `json:"recipient"`
	TargetAppID string    `json:"target_app_id,omitempty"`
	Metadata    string    `json:"metadata,omitempty"`
}

// PassThreadControl transfers ownership of the user's thread to another
// app, typically the page inbox.
func (c *Client) PassThreadControl(ctx context.Context, userID, targetAppID, metadata string) error {
	err := c.post(ctx, "/me/pass_thread_control", threadControlRequest{
		Recipient:   Recipient{ID: userID},
		TargetAppID: targetAppID,
		Metadata:    metadata,
	}, nil)
	if err != nil {
		return fmt.Errorf("pass thread control: %w", err)
	}
	c.log.Info("thread control passed",
		slog.String("user_id", userID),
		slog.String("target_app_id", targetAppID))
	return nil
}

// TakeThreadControl reclaims ownership of the user's thread.
func (c *Client) TakeThreadControl(ctx context.Context, userID, metadata string) error {
	err := c.post(ctx, "/me/take_thread_control", threadControlRequest{
		Recipient: Recipient{ID: userID},
		Metadata:  metadata,
	}, nil)
	if err != nil {
		return fmt.Errorf("take thread control: %w", err)
	}
	c.log.Info("thread control taken", slog.String("user_id", userID))
	return nil
}

// GetProfile fetches the public profile of a user.
func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	endpoint := fmt.Sprintf("%s/%s?fields=first_name,last_name,profile_pic,locale,timezone,gender&access_token=%s",
		c.baseURL, url.PathEscape(userID), url.QueryEscape(c.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return profile, fmt.Errorf("get profile: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return profile, fmt.Errorf("get profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return profile, fmt.Errorf("get profile: %s", readAPIError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return profile, fmt.Errorf("get profile: decode: %w", err)
	}
	return profile, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s%s?access_token=%s", c.baseURL, path, url.QueryEscape(c.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", readAPIError(resp))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func readAPIError(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Sprintf("graph api error %d (%s): %s",
			apiErr.Error.Code, apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, data)
}
