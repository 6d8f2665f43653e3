// Package wav encodes and decodes mono 16-bit PCM audio in the RIFF/WAVE
// container, the uncompressed format the service returns to callers.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// Container layout constants.
const (
	channels       = 1
	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
	headerSize     = 44
	fmtChunkSize   = 16
	pcmFormat      = 1

	filePermissions = 0o600
)

// Chunk identifiers.
const (
	chunkRIFF = "RIFF"
	chunkWAVE = "WAVE"
	chunkFmt  = "fmt "
	chunkData = "data"
)

// Static errors.
var (
	// ErrNoSamples indicates an attempt to encode an empty sample buffer.
	ErrNoSamples = errors.New("cannot encode empty sample buffer")
	// ErrInvalidSampleRate indicates a non-positive sample rate.
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrMalformed indicates a file that is not a mono 16-bit PCM WAV.
	ErrMalformed = errors.New("malformed wav data")
)

// Codec implements the core.Encoder interface over this package.
type Codec struct{}

// NewCodec creates a Codec.
func NewCodec() Codec {
	return Codec{}
}

// Encode persists the samples to path as a mono 16-bit PCM WAV file.
func (Codec) Encode(path string, samples []float32, sampleRate int) error {
	return Encode(path, samples, sampleRate)
}

// Encode writes samples to path as a mono 16-bit PCM WAV file. Samples are
// expected in [-1.0, 1.0]; values outside that range are clamped.
func Encode(path string, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	if sampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	dataSize := len(samples) * bytesPerSample
	buffer := make([]byte, 0, headerSize+dataSize)
	buffer = appendHeader(buffer, dataSize, sampleRate)

	for _, sample := range samples {
		buffer = binary.LittleEndian.AppendUint16(
			buffer,
			uint16(quantize(sample)),
		)
	}

	err := os.WriteFile(path, buffer, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write wav file: %w", err)
	}

	return nil
}

// Decode reads a mono 16-bit PCM WAV file and returns its samples and sample
// rate.
func Decode(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read wav file: %w", err)
	}

	sampleRate, payload, parseErr := parse(data)
	if parseErr != nil {
		return nil, 0, parseErr
	}

	samples := make([]float32, len(payload)/bytesPerSample)
	for i := range samples {
		value := int16(binary.LittleEndian.Uint16(payload[i*bytesPerSample:]))
		samples[i] = normalize(value)
	}

	return samples, sampleRate, nil
}

// normalize maps one 16-bit PCM value into [-1.0, 1.0]. Full-scale negative
// (-32768) clamps to -1.0 so decoded audio never leaves the documented range.
func normalize(value int16) float32 {
	sample := float32(value) / float32(math.MaxInt16)
	if sample < -1.0 {
		sample = -1.0
	}

	return sample
}

// quantize converts one sample to 16-bit PCM, clamping out-of-range input.
func quantize(sample float32) int16 {
	if sample > 1.0 {
		sample = 1.0
	}

	if sample < -1.0 {
		sample = -1.0
	}

	return int16(math.Round(float64(sample) * math.MaxInt16))
}

// appendHeader writes the canonical 44-byte RIFF/WAVE header for a mono
// 16-bit PCM stream.
func appendHeader(buffer []byte, dataSize, sampleRate int) []byte {
	byteRate := sampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample

	buffer = append(buffer, chunkRIFF...)
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(headerSize-8+dataSize))
	buffer = append(buffer, chunkWAVE...)

	buffer = append(buffer, chunkFmt...)
	buffer = binary.LittleEndian.AppendUint32(buffer, fmtChunkSize)
	buffer = binary.LittleEndian.AppendUint16(buffer, pcmFormat)
	buffer = binary.LittleEndian.AppendUint16(buffer, channels)
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(sampleRate))
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(byteRate))
	buffer = binary.LittleEndian.AppendUint16(buffer, uint16(blockAlign))
	buffer = binary.LittleEndian.AppendUint16(buffer, bitsPerSample)

	buffer = append(buffer, chunkData...)
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(dataSize))

	return buffer
}

// parse validates the container and returns the sample rate and raw PCM
// payload.
func parse(data []byte) (int, []byte, error) {
	if len(data) < headerSize {
		return 0, nil, fmt.Errorf("%w: truncated header", ErrMalformed)
	}

	if string(data[0:4]) != chunkRIFF || string(data[8:12]) != chunkWAVE {
		return 0, nil, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrMalformed)
	}

	if string(data[12:16]) != chunkFmt {
		return 0, nil, fmt.Errorf("%w: missing fmt chunk", ErrMalformed)
	}

	format := binary.LittleEndian.Uint16(data[20:22])
	channelCount := binary.LittleEndian.Uint16(data[22:24])
	depth := binary.LittleEndian.Uint16(data[34:36])

	if format != pcmFormat || channelCount != channels || depth != bitsPerSample {
		return 0, nil, fmt.Errorf(
			"%w: expected mono 16-bit PCM, got format=%d channels=%d depth=%d",
			ErrMalformed, format, channelCount, depth,
		)
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))

	if string(data[36:40]) != chunkData {
		return 0, nil, fmt.Errorf("%w: missing data chunk", ErrMalformed)
	}

	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))

	payload := data[headerSize:]
	if dataSize > len(payload) || dataSize%bytesPerSample != 0 {
		return 0, nil, fmt.Errorf("%w: inconsistent data chunk size", ErrMalformed)
	}

	return sampleRate, payload[:dataSize], nil
}
