package transcribe

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/vmnotes/vmt-engine/internal/platform"
)

// ResolveStatus is the explicit outcome of target resolution. The resolver
// never surfaces platform error types; transport failures collapse into
// StatusNotFound.
type ResolveStatus int

const (
	StatusFound ResolveStatus = iota
	StatusNotFound
	StatusNotTranscribable
	StatusNoPermission
)

func (s ResolveStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusNotTranscribable:
		return "not_transcribable"
	case StatusNoPermission:
		return "no_permission"
	default:
		return "unknown"
	}
}

// Invocation is the context a command was issued from. GuildID is 0 for
// direct messages.
type Invocation struct {
	ChannelID int64
	GuildID   int64
}

// DefaultScanLimit bounds the recent-history fallback scan.
const DefaultScanLimit = 50

var messageLinkRE = regexp.MustCompile(`^https://(?:ptb\.|canary\.)?discord(?:app)?\.com/channels/(\d+)/(\d+)/(\d+)$`)

// ResolveTarget resolves a user-supplied message reference: a deep link, a
// bare numeric id in the invocation channel, or — when raw is empty — a scan
// of recent channel history preferring native voice notes over generic audio
// uploads. A deep link into a different guild than the invocation's resolves
// to not-found so a command can never disclose messages across guilds.
func ResolveTarget(ctx context.Context, client platform.Client, inv Invocation, raw string, scanLimit int) (*platform.Message, ResolveStatus) {
	raw = strings.TrimSpace(raw)
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}

	if raw != "" {
		return resolveExplicit(ctx, client, inv, raw)
	}
	return scanHistory(ctx, client, inv.ChannelID, scanLimit)
}

func resolveExplicit(ctx context.Context, client platform.Client, inv Invocation, raw string) (*platform.Message, ResolveStatus) {
	var channelID, messageID int64

	if m := messageLinkRE.FindStringSubmatch(raw); m != nil {
		guildID, _ := strconv.ParseInt(m[1], 10, 64)
		channelID, _ = strconv.ParseInt(m[2], 10, 64)
		messageID, _ = strconv.ParseInt(m[3], 10, 64)
		if inv.GuildID != 0 && inv.GuildID != guildID {
			return nil, StatusNotFound
		}
	} else if isDigits(raw) {
		channelID = inv.ChannelID
		messageID, _ = strconv.ParseInt(raw, 10, 64)
	} else {
		return nil, StatusNotFound
	}

	// Not-found, forbidden and transport errors are all swallowed here; an
	// explicit reference that cannot be fetched is simply a miss.
	msg, err := client.FetchMessage(ctx, channelID, messageID)
	if err != nil || msg == nil {
		return nil, StatusNotFound
	}
	if !platform.IsTranscribable(msg) {
		return msg, StatusNotTranscribable
	}
	return msg, StatusFound
}

// scanHistory walks recent messages newest-first, skipping the bot's own.
// A native voice note wins immediately; otherwise the first (newest) generic
// audio attachment seen is the fallback.
func scanHistory(ctx context.Context, client platform.Client, channelID int64, limit int) (*platform.Message, ResolveStatus) {
	if !client.CanReadHistory(ctx, channelID) {
		return nil, StatusNoPermission
	}

	msgs, err := client.RecentMessages(ctx, channelID, limit)
	if err != nil {
		return nil, StatusNotFound
	}

	var audioFallback *platform.Message
	for _, msg := range msgs {
		if msg == nil || msg.Author.ID == client.SelfID() {
			continue
		}
		if platform.IsVoiceNote(msg) {
			return msg, StatusFound
		}
		if audioFallback == nil && platform.IsAudioAttachment(msg) {
			audioFallback = msg
		}
	}
	if audioFallback != nil {
		return audioFallback, StatusFound
	}
	return nil, StatusNotFound
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
