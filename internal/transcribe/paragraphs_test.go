package transcribe

import (
	"strings"
	"testing"
)

func TestFormatParagraphs_Empty(t *testing.T) {
	if got := FormatParagraphs(nil, DefaultParagraphOptions()); got != "" {
		t.Errorf("empty input should yield empty string, got %q", got)
	}
}

func TestFormatParagraphs_SplitThenMerge(t *testing.T) {
	// Punctuation plus a long gap splits, but the merge pass folds the short
	// first paragraph back into its successor.
	opts := ParagraphOptions{GapSeconds: 1.0, MinLength: 40, Terminals: ".!?"}
	words := []Word{
		{Word: "Hello.", Start: 0.0, End: 0.5},
		{Word: "World", Start: 2.5, End: 3.0},
	}
	got := FormatParagraphs(words, opts)
	if got != "Hello. World" {
		t.Errorf("got %q, want single merged paragraph %q", got, "Hello. World")
	}
}

func TestFormatParagraphs_LengthRuleSplits(t *testing.T) {
	// No terminal punctuation, but the buffer is past MinLength, so the gap
	// still opens a new paragraph. Both halves exceed MinLength so the merge
	// pass keeps them apart.
	opts := ParagraphOptions{GapSeconds: 1.0, MinLength: 20, Terminals: ".!?"}
	var words []Word
	tick := 0.0
	for i := 0; i < 8; i++ {
		words = append(words, Word{Word: "alpha", Start: tick, End: tick + 0.3})
		tick += 0.4
	}
	// long silence, no punctuation before it
	tick += 5.0
	for i := 0; i < 8; i++ {
		words = append(words, Word{Word: "bravo", Start: tick, End: tick + 0.3})
		tick += 0.4
	}

	got := FormatParagraphs(words, opts)
	parts := strings.Split(got, "\n\n")
	if len(parts) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d: %q", len(parts), got)
	}
	if strings.Contains(parts[0], "bravo") || strings.Contains(parts[1], "alpha") {
		t.Errorf("split landed in the wrong place: %q", got)
	}
}

func TestFormatParagraphs_GapBelowThresholdNoSplit(t *testing.T) {
	opts := ParagraphOptions{GapSeconds: 2.0, MinLength: 5, Terminals: ".!?"}
	words := []Word{
		{Word: "Done.", Start: 0.0, End: 0.5},
		{Word: "Next", Start: 1.0, End: 1.4}, // gap 0.5 < 2.0
	}
	got := FormatParagraphs(words, opts)
	if strings.Contains(got, "\n\n") {
		t.Errorf("sub-threshold gap must not split: %q", got)
	}
	if got != "Done. Next" {
		t.Errorf("got %q", got)
	}
}

func TestFormatParagraphs_GapAloneDoesNotSplit(t *testing.T) {
	// Big gap, but no terminal punctuation and buffer below MinLength.
	opts := ParagraphOptions{GapSeconds: 1.0, MinLength: 100, Terminals: ".!?"}
	words := []Word{
		{Word: "um", Start: 0.0, End: 0.3},
		{Word: "so", Start: 5.0, End: 5.3},
	}
	if got := FormatParagraphs(words, opts); got != "um so" {
		t.Errorf("got %q, want %q", got, "um so")
	}
}

func TestFormatParagraphs_SingleShortParagraphKept(t *testing.T) {
	// A lone paragraph below MinLength has no successor to merge into and is
	// emitted as-is.
	opts := ParagraphOptions{GapSeconds: 1.0, MinLength: 500, Terminals: ".!?"}
	words := []Word{
		{Word: "Short", Start: 0.0, End: 0.4},
		{Word: "note.", Start: 0.5, End: 0.9},
	}
	if got := FormatParagraphs(words, opts); got != "Short note." {
		t.Errorf("got %q", got)
	}
}

func TestFormatParagraphs_WhitespaceCollapsed(t *testing.T) {
	opts := DefaultParagraphOptions()
	words := []Word{
		{Word: "  spaced ", Start: 0.0, End: 0.4},
		{Word: "\tout\n", Start: 0.5, End: 0.9},
	}
	if got := FormatParagraphs(words, opts); got != "spaced out" {
		t.Errorf("got %q", got)
	}
}

func TestFormatParagraphs_ThreeWayMergeCascade(t *testing.T) {
	// Two consecutive short paragraphs both fold forward into the final one.
	opts := ParagraphOptions{GapSeconds: 1.0, MinLength: 30, Terminals: ".!?"}
	words := []Word{
		{Word: "One.", Start: 0.0, End: 0.4},
		{Word: "Two.", Start: 2.0, End: 2.4},
		{Word: "Three.", Start: 4.0, End: 4.4},
	}
	got := FormatParagraphs(words, opts)
	if got != "One. Two. Three." {
		t.Errorf("got %q, want fully merged text", got)
	}
}
