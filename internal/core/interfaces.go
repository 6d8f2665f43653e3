// Package core defines the domain types and collaborator interfaces for the
// tts-server.
package core

import "context"

// GenerateSampleRate is the fixed sample rate, in Hz, of audio produced by the
// synthesis engine.
const GenerateSampleRate = 24000

// Segment is one conversational context turn used to condition synthesis,
// carrying the prior speaker, what they said, and optionally the audio of
// that turn.
type Segment struct {
	Speaker int
	Text    string
	Audio   []float32
}

// SamplingParams control token sampling during generation.
type SamplingParams struct {
	Temperature float64
	TopK        int
}

// WeightStore resolves a model identifier to a local file holding the model
// weights, fetching them from remote storage when not already cached.
type WeightStore interface {
	Fetch(ctx context.Context, modelID string) (string, error)
}

// SynthesisEngine converts text plus conversational context into a finite
// sequence of audio samples at GenerateSampleRate.
//
// LoadWeights must be called exactly once, before any Generate call. The
// maxAudioLengthMS bound is advisory; the engine decides the actual output
// length.
type SynthesisEngine interface {
	LoadWeights(ctx context.Context, path string) error
	Generate(
		ctx context.Context,
		text string,
		speaker int,
		segments []Segment,
		maxAudioLengthMS int,
		params SamplingParams,
	) ([]float32, error)
}

// Encoder persists PCM samples into an audio container at the given path.
type Encoder interface {
	Encode(path string, samples []float32, sampleRate int) error
}
