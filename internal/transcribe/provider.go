package transcribe

import "context"

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "whisper", "deepinfra", "sherpa"
	Model() string // model identifier for logs
}

// TranscribeOpts are per-request options common to all providers. Zero-value
// fields are omitted from requests, so servers with different parameter sets
// stay compatible.
type TranscribeOpts struct {
	Temperature float64
	Language    string
	// WordTimestamps requests word-level timing output. Providers that cannot
	// produce it return Words == nil and callers degrade to segment text.
	WordTimestamps bool
}

// Response is the common transcription result from any provider.
type Response struct {
	Text                string
	Language            string
	LanguageProbability float64 // 0 when the backend does not report confidence
	Duration            float64 // audio duration in seconds
	Segments            []Segment
	Words               []Word // nil if provider doesn't support word timestamps
}

// Segment is a contiguous stretch of decoded speech.
type Segment struct {
	Text  string
	Start float64
	End   float64
}

// Word is a timestamped word from any STT provider.
type Word struct {
	Word  string
	Start float64 // seconds
	End   float64 // seconds
}
