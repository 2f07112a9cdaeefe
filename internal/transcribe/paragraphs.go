package transcribe

import "strings"

// ParagraphOptions are the tunables for paragraph segmentation.
type ParagraphOptions struct {
	// GapSeconds is the minimum silence between two words that may open a
	// paragraph break.
	GapSeconds float64
	// MinLength is the minimum paragraph length in characters. Shorter
	// committed paragraphs are folded into their successor.
	MinLength int
	// Terminals are the sentence-terminal punctuation runes.
	Terminals string
}

// DefaultParagraphOptions returns the tunables used in production.
func DefaultParagraphOptions() ParagraphOptions {
	return ParagraphOptions{
		GapSeconds: 1.25,
		MinLength:  80,
		Terminals:  ".!?…。？！",
	}
}

// FormatParagraphs turns timed words into paragraph-delimited text.
//
// A new paragraph starts before a word when the silence gap since the
// previous word exceeds GapSeconds AND either the previous word ended with a
// terminal rune or the current paragraph already reached MinLength. A gap
// alone never splits. A merge pass then folds any paragraph shorter than
// MinLength into its successor; the last paragraph is emitted as-is when
// nothing follows it. Paragraphs are joined with a blank line, and internal
// whitespace collapses to single spaces.
func FormatParagraphs(words []Word, opts ParagraphOptions) string {
	var paragraphs []string
	var buf []string
	bufLen := 0
	prevEnd := 0.0
	havePrev := false

	commit := func() {
		if len(buf) > 0 {
			paragraphs = append(paragraphs, strings.Join(buf, " "))
			buf = buf[:0]
			bufLen = 0
		}
	}

	for _, w := range words {
		gap := 0.0
		if havePrev {
			gap = w.Start - prevEnd
			if gap < 0 {
				gap = 0
			}
		}

		if gap > opts.GapSeconds && len(buf) > 0 {
			if endsWithTerminal(buf[len(buf)-1], opts.Terminals) || bufLen >= opts.MinLength {
				commit()
			}
		}

		token := strings.Join(strings.Fields(w.Word), " ")
		if token != "" {
			if bufLen > 0 {
				bufLen++ // joining space
			}
			buf = append(buf, token)
			bufLen += len(token)
		}

		prevEnd = w.End
		havePrev = true
	}
	commit()

	return strings.Join(mergeShort(paragraphs, opts.MinLength), "\n\n")
}

// mergeShort prepends each sub-minimum paragraph onto its successor. The last
// paragraph has no successor and is kept even when short, which also means a
// lone short paragraph is never merged away.
func mergeShort(paragraphs []string, minLength int) []string {
	var out []string
	carry := ""
	for i, p := range paragraphs {
		p = strings.TrimSpace(p)
		if carry != "" {
			p = carry + " " + p
			carry = ""
		}
		if len(p) < minLength && i < len(paragraphs)-1 {
			carry = p
			continue
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func endsWithTerminal(word, terminals string) bool {
	runes := []rune(word)
	if len(runes) == 0 {
		return false
	}
	return strings.ContainsRune(terminals, runes[len(runes)-1])
}
