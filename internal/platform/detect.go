package platform

import (
	"path/filepath"
	"strings"
)

// audioExts is the extension allow-list for generic audio uploads whose
// declared MIME type is missing or wrong.
var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".m4a":  true,
	".flac": true,
}

// IsVoiceNote reports whether msg is a native platform voice message:
// at least one attachment plus the voice-message flag. Fails closed on nil.
func IsVoiceNote(msg *Message) bool {
	if msg == nil {
		return false
	}
	return len(msg.Attachments) > 0 && msg.VoiceNote
}

// IsAudioAttachment reports whether any attachment on msg looks like audio,
// either by MIME type or by filename extension.
func IsAudioAttachment(msg *Message) bool {
	if msg == nil {
		return false
	}
	for _, att := range msg.Attachments {
		if strings.HasPrefix(strings.ToLower(att.ContentType), "audio/") {
			return true
		}
		if audioExts[strings.ToLower(filepath.Ext(att.Filename))] {
			return true
		}
	}
	return false
}

// IsTranscribable is the single gate for automatic ingestion and explicit
// target validation.
func IsTranscribable(msg *Message) bool {
	return IsVoiceNote(msg) || IsAudioAttachment(msg)
}
