// Package csm implements the SynthesisEngine interface by running the
// csm-generate inference binary.
package csm

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-server/internal/core"
)

const bytesPerSample = 4 // raw little-endian float32 PCM

// Static errors.
var (
	// ErrBinaryPathEmpty indicates the inference binary path is not configured.
	ErrBinaryPathEmpty = errors.New("inference binary path cannot be empty")
	// ErrWeightsNotLoaded indicates Generate was called before LoadWeights.
	ErrWeightsNotLoaded = errors.New("model weights are not loaded")
	// ErrTruncatedOutput indicates the binary produced a partial sample frame.
	ErrTruncatedOutput = errors.New("inference output is not a whole number of samples")
)

// contextTurn is the JSON shape of one conditioning segment handed to the
// inference binary.
type contextTurn struct {
	Speaker int       `json:"speaker"`
	Text    string    `json:"text"`
	Audio   []float32 `json:"audio"`
}

// Engine runs the CSM speech model through the csm-generate binary. The
// binary owns the tensor computation; this engine owns argument construction,
// temp file plumbing, and sample decoding.
type Engine struct {
	binaryPath  string
	weightsPath string
	log         *logger.Logger
}

// New creates an engine that will invoke the binary at binaryPath.
func New(binaryPath string, log *logger.Logger) (*Engine, error) {
	if binaryPath == "" {
		return nil, ErrBinaryPathEmpty
	}

	return &Engine{
		binaryPath:  binaryPath,
		weightsPath: "",
		log:         log,
	}, nil
}

// LoadWeights records the weight file for subsequent Generate calls after
// verifying it exists. The model loader calls this exactly once, before the
// readiness gate admits any request.
func (e *Engine) LoadWeights(_ context.Context, path string) error {
	_, statErr := os.Stat(path)
	if statErr != nil {
		return fmt.Errorf("weights file is not readable: %w", statErr)
	}

	e.weightsPath = path

	return nil
}

// Generate synthesizes speech for the text and returns the samples produced
// by the binary at core.GenerateSampleRate.
func (e *Engine) Generate(
	ctx context.Context,
	text string,
	speaker int,
	segments []core.Segment,
	maxAudioLengthMS int,
	params core.SamplingParams,
) ([]float32, error) {
	if e.weightsPath == "" {
		return nil, ErrWeightsNotLoaded
	}

	outputFile, err := os.CreateTemp("", "csm-output-*.pcm")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for inference output: %w", err)
	}

	defer e.removeTempFile(outputFile.Name())

	closeErr := outputFile.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close inference output file: %w", closeErr)
	}

	contextPath, err := e.writeContextFile(segments)
	if err != nil {
		return nil, err
	}

	defer e.removeTempFile(contextPath)

	args := []string{
		"--weights", e.weightsPath,
		"--text", text,
		"--speaker", strconv.Itoa(speaker),
		"--context", contextPath,
		"--max-audio-length-ms", strconv.Itoa(maxAudioLengthMS),
		"--temperature", strconv.FormatFloat(params.Temperature, 'g', -1, 64),
		"--top-k", strconv.Itoa(params.TopK),
		"--out", outputFile.Name(),
	}

	// #nosec G204 -- the binary path comes from the service configuration
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return nil, fmt.Errorf(
			"inference binary execution failed: %w - output: %s",
			runErr, string(output),
		)
	}

	rawSamples, readErr := os.ReadFile(outputFile.Name())
	if readErr != nil {
		return nil, fmt.Errorf("failed to read inference output: %w", readErr)
	}

	return decodeSamples(rawSamples)
}

// writeContextFile marshals the conditioning segments into a temp JSON file
// consumed by the binary.
func (e *Engine) writeContextFile(segments []core.Segment) (string, error) {
	turns := make([]contextTurn, 0, len(segments))
	for _, segment := range segments {
		audio := segment.Audio
		if audio == nil {
			audio = []float32{}
		}

		turns = append(turns, contextTurn{
			Speaker: segment.Speaker,
			Text:    segment.Text,
			Audio:   audio,
		})
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("failed to marshal context segments: %w", err)
	}

	contextFile, err := os.CreateTemp("", "csm-context-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for context: %w", err)
	}

	_, writeErr := contextFile.Write(data)
	closeErr := contextFile.Close()

	if writeErr != nil {
		e.removeTempFile(contextFile.Name())

		return "", fmt.Errorf("failed to write context file: %w", writeErr)
	}

	if closeErr != nil {
		e.removeTempFile(contextFile.Name())

		return "", fmt.Errorf("failed to close context file: %w", closeErr)
	}

	return contextFile.Name(), nil
}

func (e *Engine) removeTempFile(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		e.log.Warn("Failed to remove temp file '%s': %v", path, removeErr)
	}
}

// decodeSamples converts raw little-endian float32 PCM into a sample slice.
func decodeSamples(raw []byte) ([]float32, error) {
	if len(raw)%bytesPerSample != 0 {
		return nil, ErrTruncatedOutput
	}

	samples := make([]float32, len(raw)/bytesPerSample)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*bytesPerSample:])
		samples[i] = math.Float32frombits(bits)
	}

	return samples, nil
}
