package transcribe

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vmnotes/vmt-engine/internal/platform"
)

const (
	// PreviewLimit is the displayed-transcript truncation length in runes.
	PreviewLimit = 600
	// FileThreshold is the full-text length above which a complete copy is
	// always attached as a file, even when the preview was not truncated.
	FileThreshold = 900

	// When truncating, prefer cutting at the last newline inside this many
	// trailing runes of the preview...
	newlineScanWindow = 120
	// ...but never move the cut more than this far back from the limit.
	newlineScanFloor = PreviewLimit - 200
)

var slugRE = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Rendered is a postable transcript: bounded content plus an optional
// full-text attachment.
type Rendered struct {
	Content string
	File    *platform.File
}

// Render converts a transcription result and source-message metadata into a
// quote-block message. Anything cut from the preview is always recoverable
// from the attached file, so content stays under the platform ceiling without
// ever silently dropping text.
func Render(res *Result, msg *platform.Message, requester *platform.Author, elapsed time.Duration) Rendered {
	fullText := strings.TrimSpace(res.Text)
	if fullText == "" {
		fullText = EmptyPlaceholder
	}

	preview, truncated := truncatePreview(fullText)

	header := strings.Join(headerBits(res, msg, requester, elapsed), " | ")
	metaLine := "> ID: " + strconv.FormatInt(msg.ID, 10)
	if msg.Permalink != "" {
		metaLine = "> Source: " + msg.Permalink
	}
	footer := "> (end)"
	attachFile := truncated || len([]rune(fullText)) > FileThreshold
	if attachFile {
		footer = "> (full transcript attached as file)"
	}

	content := fmt.Sprintf("> **%s**\n%s\n%s\n%s", header, metaLine, quoteBlock(preview), footer)
	if runes := []rune(content); len(runes) > platform.MaxMessageLen {
		content = string(runes[:platform.MaxMessageLen])
	}

	out := Rendered{Content: content}
	if attachFile {
		out.File = &platform.File{
			Name: attachmentName(msg),
			Data: []byte(fullText),
		}
	}
	return out
}

// truncatePreview cuts text to PreviewLimit runes. When a newline falls in
// the trailing scan window, the cut moves back to it so a paragraph is not
// broken mid-line, but never further back than the scan floor.
func truncatePreview(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= PreviewLimit {
		return text, false
	}
	preview := runes[:PreviewLimit]

	tail := preview[len(preview)-newlineScanWindow:]
	if containsRune(tail, '\n') {
		cut := lastIndexRune(preview, '\n')
		if cut > 0 && cut > newlineScanFloor {
			preview = preview[:cut]
		}
	}
	return string(preview) + "\n... (truncated)", true
}

func headerBits(res *Result, msg *platform.Message, requester *platform.Author, elapsed time.Duration) []string {
	bits := []string{
		fmt.Sprintf("Transcription of %s's voice message", msg.Author.Name),
		"msg " + strconv.FormatInt(msg.ID, 10),
		languageBit(res),
		formatClock(res.Duration) + " audio",
		"took " + elapsed.Round(100*time.Millisecond).String(),
	}
	if msg.CreatedAt.IsZero() {
		bits = append(bits, "unknown time")
	} else {
		bits = append(bits, msg.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if requester != nil {
		bits = append(bits, "requested by "+requester.Name)
	}
	return bits
}

// languageBit renders detected language and rounded confidence, with "?"
// standing in for unknown values.
func languageBit(res *Result) string {
	code := res.Language
	if code == "" || code == unknownLanguage {
		code = "?"
	}
	pct := "?"
	if res.LanguageProbability > 0 {
		pct = strconv.Itoa(int(math.Round(res.LanguageProbability*100))) + "%"
	}
	return fmt.Sprintf("lang %s (%s)", code, pct)
}

func formatClock(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// quoteBlock prefixes every line for block-quote display; blank lines become
// a bare marker so the quote is not interrupted.
func quoteBlock(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n")
}

// attachmentName builds a per-message-unique filename from the sanitized
// author handle, a compact timestamp and the source message id.
func attachmentName(msg *platform.Message) string {
	slug := slugRE.ReplaceAllString(msg.Author.Name, "_")
	if len(slug) > 32 {
		slug = slug[:32]
	}
	if slug == "" {
		slug = strconv.FormatInt(msg.Author.ID, 10)
	}
	ts := "unknown"
	if !msg.CreatedAt.IsZero() {
		ts = msg.CreatedAt.UTC().Format("20060102-150405")
	}
	return fmt.Sprintf("vm_%s_%s_%d.txt", slug, ts, msg.ID)
}

func containsRune(rs []rune, r rune) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
