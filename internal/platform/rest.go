package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://discord.com/api/v10"

// RestClient implements Client against the platform's REST API using a bot
// token. Gateway event intake is handled by the embedding application; this
// client only covers fetch, history, reply, reactions and attachment download.
type RestClient struct {
	base   string
	token  string
	selfID int64
	client *http.Client
	log    zerolog.Logger
}

// NewRestClient builds a REST client and resolves the bot's own user id.
func NewRestClient(ctx context.Context, token string, log zerolog.Logger) (*RestClient, error) {
	return newRestClient(ctx, defaultAPIBase, token, log)
}

func newRestClient(ctx context.Context, base, token string, log zerolog.Logger) (*RestClient, error) {
	rc := &RestClient{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
	var me wireAuthor
	if err := rc.getJSON(ctx, "/users/@me", &me); err != nil {
		return nil, fmt.Errorf("resolve self: %w", err)
	}
	rc.selfID = parseSnowflake(me.ID)
	log.Info().Int64("self_id", rc.selfID).Msg("platform client ready")
	return rc, nil
}

// SelfID returns the bot's own user id.
func (rc *RestClient) SelfID() int64 { return rc.selfID }

// FetchMessage retrieves a single message.
func (rc *RestClient) FetchMessage(ctx context.Context, channelID, messageID int64) (*Message, error) {
	var wm wireMessage
	path := fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID)
	if err := rc.getJSON(ctx, path, &wm); err != nil {
		return nil, err
	}
	return wm.toMessage(channelID), nil
}

// RecentMessages returns up to limit messages from a channel, newest first
// (the API's natural order).
func (rc *RestClient) RecentMessages(ctx context.Context, channelID int64, limit int) ([]*Message, error) {
	var wms []wireMessage
	path := fmt.Sprintf("/channels/%d/messages?limit=%d", channelID, limit)
	if err := rc.getJSON(ctx, path, &wms); err != nil {
		return nil, err
	}
	msgs := make([]*Message, len(wms))
	for i := range wms {
		msgs[i] = wms[i].toMessage(channelID)
	}
	return msgs, nil
}

// CanReadHistory probes channel history with a one-message fetch. A forbidden
// response means the history permission is missing.
func (rc *RestClient) CanReadHistory(ctx context.Context, channelID int64) bool {
	var wms []wireMessage
	path := fmt.Sprintf("/channels/%d/messages?limit=1", channelID)
	err := rc.getJSON(ctx, path, &wms)
	return err == nil
}

// ReadAttachment downloads the full attachment payload from its CDN URL.
func (rc *RestClient) ReadAttachment(ctx context.Context, att Attachment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, "attachment download")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment body: %w", err)
	}
	return data, nil
}

// Reply posts content under msg without pinging its author. When file is
// non-nil the request is sent as multipart with the payload JSON inline.
func (rc *RestClient) Reply(ctx context.Context, msg *Message, content string, file *File) error {
	payload := map[string]any{
		"content": content,
		"message_reference": map[string]any{
			"channel_id": strconv.FormatInt(msg.ChannelID, 10),
			"message_id": strconv.FormatInt(msg.ID, 10),
		},
		"allowed_mentions": map[string]any{"replied_user": false},
	}
	path := fmt.Sprintf("/channels/%d/messages", msg.ChannelID)

	var body io.Reader
	contentType := "application/json"
	if file == nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal reply: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal reply: %w", err)
		}
		if err := w.WriteField("payload_json", string(raw)); err != nil {
			return fmt.Errorf("write payload field: %w", err)
		}
		part, err := w.CreateFormFile("files[0]", file.Name)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return fmt.Errorf("write file data: %w", err)
		}
		w.Close()
		body = &buf
		contentType = w.FormDataContentType()
	}

	return rc.do(ctx, http.MethodPost, path, body, contentType)
}

// AddReaction adds emoji to msg on behalf of the bot.
func (rc *RestClient) AddReaction(ctx context.Context, msg *Message, emoji string) error {
	path := fmt.Sprintf("/channels/%d/messages/%d/reactions/%s/@me",
		msg.ChannelID, msg.ID, url.PathEscape(emoji))
	return rc.do(ctx, http.MethodPut, path, nil, "")
}

// RemoveReaction removes the bot's own emoji reaction from msg.
func (rc *RestClient) RemoveReaction(ctx context.Context, msg *Message, emoji string) error {
	path := fmt.Sprintf("/channels/%d/messages/%d/reactions/%s/@me",
		msg.ChannelID, msg.ID, url.PathEscape(emoji))
	return rc.do(ctx, http.MethodDelete, path, nil, "")
}

func (rc *RestClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.base+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+rc.token)

	resp, err := rc.client.Do(req)
	if err != nil {
		return fmt.Errorf("platform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return statusError(resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (rc *RestClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, method, rc.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+rc.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		return fmt.Errorf("platform request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, path)
	}
	return nil
}

// statusError maps HTTP status codes to the sentinel errors callers branch on.
func statusError(status int, what string) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case http.StatusForbidden:
		return fmt.Errorf("%s: %w", what, ErrForbidden)
	default:
		return fmt.Errorf("%s: unexpected status %d", what, status)
	}
}

// voiceMessageFlag is bit 13 of the message flags field.
const voiceMessageFlag = 1 << 13

type wireAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type wireAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

type wireMessage struct {
	ID          string           `json:"id"`
	ChannelID   string           `json:"channel_id"`
	GuildID     string           `json:"guild_id"`
	Author      wireAuthor       `json:"author"`
	Timestamp   time.Time        `json:"timestamp"`
	Flags       int              `json:"flags"`
	Attachments []wireAttachment `json:"attachments"`
}

func (wm *wireMessage) toMessage(fallbackChannel int64) *Message {
	channelID := parseSnowflake(wm.ChannelID)
	if channelID == 0 {
		channelID = fallbackChannel
	}
	msg := &Message{
		ID:        parseSnowflake(wm.ID),
		ChannelID: channelID,
		GuildID:   parseSnowflake(wm.GuildID),
		Author: Author{
			ID:   parseSnowflake(wm.Author.ID),
			Name: wm.Author.Username,
			Bot:  wm.Author.Bot,
		},
		CreatedAt: wm.Timestamp,
		VoiceNote: wm.Flags&voiceMessageFlag != 0,
	}
	if msg.GuildID != 0 {
		msg.Permalink = fmt.Sprintf("https://discord.com/channels/%d/%d/%d", msg.GuildID, channelID, msg.ID)
	}
	for _, a := range wm.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			URL:         a.URL,
		})
	}
	return msg
}

func parseSnowflake(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
