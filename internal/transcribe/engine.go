package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vmnotes/vmt-engine/internal/platform"
)

// EmptyPlaceholder replaces an empty model output so a delivered transcript
// is never a blank message.
const EmptyPlaceholder = "(empty transcription)"

// unknownLanguage is reported when the provider gives no language metadata.
const unknownLanguage = "unknown"

// AttachmentReader is the slice of the platform client the engine needs.
type AttachmentReader interface {
	ReadAttachment(ctx context.Context, att platform.Attachment) ([]byte, error)
}

// EngineOptions configures the transcription engine.
type EngineOptions struct {
	Language    string
	Temperature float64
	// Paragraphs enables word-timestamp output and paragraph segmentation.
	Paragraphs bool
	Paragraph  ParagraphOptions
}

// Result is the normalized output of one engine invocation.
type Result struct {
	Text                string
	Language            string
	LanguageProbability float64 // 0.0 when unknown
	Duration            float64 // audio duration in seconds
	Words               []Word  // nil when the provider has no word timings
}

// Engine adapts a Provider to the job pipeline: it stages attachment bytes in
// a scoped temp file, runs the model, and normalizes the output. The heavy
// provider call happens on the caller's goroutine; the single job worker is
// the only caller, so inference never blocks an event path.
type Engine struct {
	provider Provider
	reader   AttachmentReader
	opts     EngineOptions
	log      zerolog.Logger
}

// NewEngine creates an engine around the given provider.
func NewEngine(provider Provider, reader AttachmentReader, opts EngineOptions, log zerolog.Logger) *Engine {
	return &Engine{provider: provider, reader: reader, opts: opts, log: log}
}

// Provider returns the wrapped speech-to-text backend.
func (e *Engine) Provider() Provider { return e.provider }

// Transcribe runs the full adapter flow for msg's first attachment. The temp
// file is removed on every exit path. The only error surfaced is a wrapped
// failure carrying the underlying cause.
func (e *Engine) Transcribe(ctx context.Context, msg *platform.Message) (*Result, error) {
	if msg == nil || len(msg.Attachments) == 0 {
		return nil, fmt.Errorf("transcribe: message %d has no attachments", msgID(msg))
	}
	att := msg.Attachments[0]

	data, err := e.reader.ReadAttachment(ctx, att)
	if err != nil {
		return nil, fmt.Errorf("transcribe: fetch attachment: %w", err)
	}

	tmp, err := os.CreateTemp("", "vmt-*"+safeExt(att.Filename))
	if err != nil {
		return nil, fmt.Errorf("transcribe: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("transcribe: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("transcribe: close temp file: %w", err)
	}

	resp, err := e.provider.Transcribe(ctx, tmpPath, TranscribeOpts{
		Temperature:    e.opts.Temperature,
		Language:       e.opts.Language,
		WordTimestamps: e.opts.Paragraphs,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: %s: %w", e.provider.Name(), err)
	}

	result := &Result{
		Language:            resp.Language,
		LanguageProbability: resp.LanguageProbability,
		Duration:            resp.Duration,
		Words:               resp.Words,
	}
	if result.Language == "" {
		result.Language = unknownLanguage
	}

	if e.opts.Paragraphs && len(resp.Words) > 0 {
		result.Text = FormatParagraphs(resp.Words, e.opts.Paragraph)
	} else {
		result.Text = joinSegments(resp)
	}
	if strings.TrimSpace(result.Text) == "" {
		result.Text = EmptyPlaceholder
	}

	e.log.Debug().
		Int64("message_id", msg.ID).
		Str("provider", e.provider.Name()).
		Str("language", result.Language).
		Float64("audio_seconds", result.Duration).
		Int("chars", len(result.Text)).
		Msg("transcription produced")

	return result, nil
}

// joinSegments concatenates non-empty segment texts, falling back to the raw
// text when the provider returned no segments.
func joinSegments(resp *Response) string {
	if len(resp.Segments) == 0 {
		return strings.TrimSpace(resp.Text)
	}
	var parts []string
	for _, s := range resp.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// safeExt keeps the original extension for the temp file when it looks sane.
func safeExt(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 8 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}

func msgID(msg *platform.Message) int64 {
	if msg == nil {
		return 0
	}
	return msg.ID
}
