package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

const sampleMessage = `{
	"id": "1199000000000000001",
	"channel_id": "222",
	"guild_id": "333",
	"author": {"id": "444", "username": "maya", "bot": false},
	"timestamp": "2025-06-01T12:30:00Z",
	"flags": 8192,
	"attachments": [
		{"filename": "voice-message.ogg", "content_type": "audio/ogg", "size": 9001, "url": "https://cdn.example/voice-message.ogg"}
	]
}`

func newTestRestClient(t *testing.T, handler http.HandlerFunc) (*RestClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/@me" {
			w.Write([]byte(`{"id": "99", "username": "vmt", "bot": true}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	rc, err := newRestClient(context.Background(), srv.URL, "test-token", zerolog.Nop())
	if err != nil {
		t.Fatalf("newRestClient: %v", err)
	}
	return rc, srv
}

func TestRestClient_FetchMessage(t *testing.T) {
	rc, _ := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/channels/222/messages/1199000000000000001" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(sampleMessage))
	})

	if got := rc.SelfID(); got != 99 {
		t.Fatalf("SelfID() = %d, want 99", got)
	}

	msg, err := rc.FetchMessage(context.Background(), 222, 1199000000000000001)
	if err != nil {
		t.Fatalf("FetchMessage: %v", err)
	}
	if msg.ID != 1199000000000000001 || msg.ChannelID != 222 || msg.GuildID != 333 {
		t.Errorf("ids = %d/%d/%d", msg.ID, msg.ChannelID, msg.GuildID)
	}
	if !msg.VoiceNote {
		t.Error("flags bit 13 should mark the message as a voice note")
	}
	if msg.Author.Name != "maya" {
		t.Errorf("author = %q", msg.Author.Name)
	}
	if msg.Permalink == "" {
		t.Error("guild message should carry a permalink")
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].ContentType != "audio/ogg" {
		t.Errorf("attachments = %+v", msg.Attachments)
	}
}

func TestRestClient_StatusMapping(t *testing.T) {
	status := http.StatusNotFound
	rc, _ := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	_, err := rc.FetchMessage(context.Background(), 1, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("404 should map to ErrNotFound, got %v", err)
	}

	status = http.StatusForbidden
	_, err = rc.FetchMessage(context.Background(), 1, 2)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("403 should map to ErrForbidden, got %v", err)
	}
	if rc.CanReadHistory(context.Background(), 1) {
		t.Error("CanReadHistory should be false when history probe is forbidden")
	}
}

func TestRestClient_ReplyWithFile(t *testing.T) {
	var gotContentType string
	rc, _ := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	})

	msg := &Message{ID: 7, ChannelID: 8}
	err := rc.Reply(context.Background(), msg, "> transcript", &File{Name: "vm.txt", Data: []byte("hello")})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if gotContentType == "application/json" || gotContentType == "" {
		t.Errorf("file reply should be multipart, got %q", gotContentType)
	}
}
