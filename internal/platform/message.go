// Package platform defines the narrow boundary between the transcription
// pipeline and the chat platform. Incoming gateway/interaction payloads are
// resolved into these explicit types once, at the edge; the core never
// inspects raw platform objects.
package platform

import (
	"context"
	"errors"
	"time"
)

// MaxMessageLen is the platform's hard ceiling on message content length.
const MaxMessageLen = 2000

// Sentinel errors a Client implementation must return so callers can branch
// on outcome without knowing the transport.
var (
	ErrNotFound  = errors.New("platform: not found")
	ErrForbidden = errors.New("platform: forbidden")
)

// Author identifies the user that posted a message.
type Author struct {
	ID   int64
	Name string
	Bot  bool
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	URL         string
}

// Message is a resolved platform message. GuildID is 0 for direct messages
// and Permalink is empty when the platform did not provide one.
type Message struct {
	ID          int64
	ChannelID   int64
	GuildID     int64
	Author      Author
	CreatedAt   time.Time
	Permalink   string
	VoiceNote   bool // platform voice-message flag, distinct from a plain audio upload
	Attachments []Attachment
}

// File is a payload uploaded alongside a reply.
type File struct {
	Name string
	Data []byte
}

// Client is the platform surface the pipeline consumes. Implementations map
// transport failures to ErrNotFound / ErrForbidden where applicable; any
// other error is treated as transient by callers.
type Client interface {
	// FetchMessage retrieves a single message by channel and message id.
	FetchMessage(ctx context.Context, channelID, messageID int64) (*Message, error)
	// RecentMessages returns up to limit messages from a channel, newest first.
	RecentMessages(ctx context.Context, channelID int64, limit int) ([]*Message, error)
	// ReadAttachment downloads the full payload of an attachment.
	ReadAttachment(ctx context.Context, att Attachment) ([]byte, error)
	// Reply posts content under msg, optionally with a file, without pinging the author.
	Reply(ctx context.Context, msg *Message, content string, file *File) error
	AddReaction(ctx context.Context, msg *Message, emoji string) error
	RemoveReaction(ctx context.Context, msg *Message, emoji string) error
	// CanReadHistory reports whether the bot may iterate channel history.
	CanReadHistory(ctx context.Context, channelID int64) bool
	// SelfID is the bot's own user id, used to skip its own messages.
	SelfID() int64
}

// Responder delivers deferred replies for an interactive submission
// (slash command or context action). Absent for automatic jobs.
type Responder interface {
	// Followup sends a visible follow-up message, optionally with a file.
	Followup(ctx context.Context, content string, file *File) error
	// FollowupEphemeral sends a follow-up only the requester can see.
	FollowupEphemeral(ctx context.Context, content string) error
}
