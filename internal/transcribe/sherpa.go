package transcribe

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaConfig holds the model file paths for the local recognizer.
type SherpaConfig struct {
	EncoderPath string
	DecoderPath string
	JoinerPath  string
	TokensPath  string
	SampleRate  int
	NumThreads  int
}

// SherpaClient runs speech recognition locally through sherpa-onnx.
// Implements the Provider interface. The recognizer is a large stateful
// resource loaded once; all access is serialized by the single job worker.
// Word-level timestamps are not produced, so paragraph mode degrades to
// plain segment text.
type SherpaClient struct {
	cfg        SherpaConfig
	recognizer *sherpa.OfflineRecognizer
}

// NewSherpaClient loads the offline recognizer from the configured model files.
func NewSherpaClient(cfg SherpaConfig) (*SherpaClient, error) {
	if cfg.EncoderPath == "" || cfg.DecoderPath == "" || cfg.JoinerPath == "" || cfg.TokensPath == "" {
		return nil, fmt.Errorf("sherpa: encoder, decoder, joiner and tokens paths are all required")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 2
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: cfg.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Transducer: sherpa.OfflineTransducerModelConfig{
				Encoder: cfg.EncoderPath,
				Decoder: cfg.DecoderPath,
				Joiner:  cfg.JoinerPath,
			},
			Tokens:     cfg.TokensPath,
			NumThreads: cfg.NumThreads,
			Debug:      0,
		},
	}

	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		return nil, fmt.Errorf("sherpa: failed to create offline recognizer")
	}
	return &SherpaClient{cfg: cfg, recognizer: recognizer}, nil
}

// Name returns the provider name.
func (sc *SherpaClient) Name() string { return "sherpa" }

// Model returns the encoder path as the model identifier.
func (sc *SherpaClient) Model() string { return sc.cfg.EncoderPath }

// Transcribe decodes a 16-bit PCM WAV file through the local recognizer.
func (sc *SherpaClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	samples, sampleRate, err := readWavSamples(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := sherpa.NewOfflineStream(sc.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	sc.recognizer.Decode(stream)
	result := stream.GetResult()

	duration := float64(len(samples)) / float64(sampleRate)
	resp := &Response{
		Text:     result.Text,
		Duration: duration,
	}
	if result.Text != "" {
		resp.Segments = []Segment{{Text: result.Text, Start: 0, End: duration}}
	}
	return resp, nil
}

// readWavSamples parses a 16-bit PCM WAV file into normalized float32 samples.
// Multi-channel audio is mixed down by taking the first channel.
func readWavSamples(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	riff := make([]byte, 12)
	if _, err := io.ReadFull(f, riff); err != nil {
		return nil, 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a valid WAV file")
	}

	var numChannels, sampleRate, bitsPerSample int
	var data []byte

	for data == nil {
		hdr := make([]byte, 8)
		if _, err := io.ReadFull(f, hdr); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, 0, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(hdr[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch chunkID {
		case "fmt ":
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, fmtChunk); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			numChannels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
		case "data":
			data = make([]byte, chunkSize)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
		default:
			// Skip unknown chunks (pad to even size per RIFF)
			if chunkSize%2 == 1 {
				chunkSize++
			}
			if _, err := f.Seek(chunkSize, io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("skip chunk %q: %w", chunkID, err)
			}
		}
	}

	if sampleRate == 0 || data == nil {
		return nil, 0, fmt.Errorf("missing fmt or data chunk")
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bits per sample: %d", bitsPerSample)
	}
	if numChannels < 1 {
		numChannels = 1
	}

	frameSize := 2 * numChannels
	n := len(data) / frameSize
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*frameSize:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples, sampleRate, nil
}
