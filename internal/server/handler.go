package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/book-expert/tts-server/internal/core"
	"github.com/book-expert/tts-server/internal/readiness"
)

// Request parameter defaults.
const (
	defaultTemperature      = 0.8
	defaultTopK             = 50
	defaultMaxAudioLengthMS = 10000
)

// Response headers and values.
const (
	headerContentType        = "Content-Type"
	headerContentLength      = "Content-Length"
	headerContentDisposition = "Content-Disposition"
	contentTypeJSON          = "application/json"
	contentTypeWAV           = "audio/wav"
	attachmentDisposition    = `attachment; filename=tts_output.wav`
)

// User-facing messages.
const (
	msgModelLoading    = "Model is still loading. Please try again later."
	msgModelFailed     = "Model failed to load. Please check server logs."
	msgRootLoading     = "The TTS model is still loading..."
	msgRootFailed      = "Failed to load the TTS model"
	msgRootReady       = "TTS server is ready"
	msgInvalidBody     = "invalid request body: "
	msgGenerationError = "Error generating speech: "
)

// ContextTurn is one prior speaker/text/audio triple conditioning the
// synthesis. Pointer fields distinguish absent values: a turn missing text or
// speaker is silently dropped rather than rejected.
type ContextTurn struct {
	Speaker *int      `json:"speaker"`
	Text    *string   `json:"text"`
	Audio   []float32 `json:"audio"`
}

// TTSRequest is the JSON body of POST /tts.
type TTSRequest struct {
	Text             string        `json:"text"`
	Speaker          int           `json:"speaker"`
	Temperature      *float64      `json:"temperature"`
	TopK             *int          `json:"top_k"`
	MaxAudioLengthMS *int          `json:"max_audio_length_ms"`
	Context          []ContextTurn `json:"context"`
}

// statusResponse is the body of the status endpoints.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// errorResponse is the machine-readable error body.
type errorResponse struct {
	Error string `json:"error"`
}

// handleRoot reports the readiness state with a human-readable message.
func (s *Server) handleRoot(writer http.ResponseWriter, _ *http.Request) {
	state := s.status.State()

	s.writeJSON(writer, http.StatusOK, statusResponse{
		Status:  state.String(),
		Message: rootMessage(state),
	})
}

// handleHealth reports the bare readiness state.
func (s *Server) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	s.writeJSON(writer, http.StatusOK, statusResponse{
		Status:  s.status.State().String(),
		Message: "",
	})
}

// handleTTS converts text to speech and returns a WAV attachment. Requests
// arriving before the model is ready are rejected, never queued.
func (s *Server) handleTTS(writer http.ResponseWriter, request *http.Request) {
	var req TTSRequest

	decodeErr := json.NewDecoder(request.Body).Decode(&req)
	if decodeErr != nil {
		s.writeJSON(writer, http.StatusBadRequest, errorResponse{
			Error: msgInvalidBody + decodeErr.Error(),
		})

		return
	}

	switch s.status.State() {
	case readiness.Loading:
		s.writeJSON(writer, http.StatusServiceUnavailable, errorResponse{
			Error: msgModelLoading,
		})

		return
	case readiness.Failed:
		s.writeJSON(writer, http.StatusInternalServerError, errorResponse{
			Error: msgModelFailed,
		})

		return
	case readiness.Ready:
	}

	samples, genErr := s.generate(request.Context(), &req)
	if genErr != nil {
		s.log.Error("Error generating speech: %v", genErr)
		s.writeJSON(writer, http.StatusInternalServerError, errorResponse{
			Error: msgGenerationError + genErr.Error(),
		})

		return
	}

	art := s.artifacts.Allocate()
	cleanup := s.artifacts.CleanupFunc(art)

	writeErr := s.artifacts.Write(art, samples, core.GenerateSampleRate)
	if writeErr != nil {
		// The artifact never reached delivery; release it now.
		cleanup()
		s.log.Error("Error persisting speech audio: %v", writeErr)
		s.writeJSON(writer, http.StatusInternalServerError, errorResponse{
			Error: msgGenerationError + writeErr.Error(),
		})

		return
	}

	// The cleanup callback fires after the handler returns, strictly after
	// the artifact's bytes have been handed to the transport layer.
	defer cleanup()

	s.streamArtifact(writer, art.Path())
}

// generate builds the conditioning context and invokes the synthesis engine,
// applying the documented parameter defaults and the configured per-request
// timeout. Empty text is forwarded to the engine as-is.
func (s *Server) generate(ctx context.Context, req *TTSRequest) ([]float32, error) {
	segments := buildSegments(req.Context)

	params := core.SamplingParams{
		Temperature: floatOrDefault(req.Temperature, defaultTemperature),
		TopK:        intOrDefault(req.TopK, defaultTopK),
	}
	maxAudioLengthMS := intOrDefault(req.MaxAudioLengthMS, defaultMaxAudioLengthMS)

	if s.generateTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.generateTimeout)
		defer cancel()
	}

	return s.loader.Engine().Generate(
		ctx,
		req.Text,
		req.Speaker,
		segments,
		maxAudioLengthMS,
		params,
	)
}

// streamArtifact sends the encoded audio file as a binary attachment.
func (s *Server) streamArtifact(writer http.ResponseWriter, path string) {
	file, openErr := os.Open(path)
	if openErr != nil {
		s.log.Error("Failed to open audio artifact '%s': %v", path, openErr)
		s.writeJSON(writer, http.StatusInternalServerError, errorResponse{
			Error: msgGenerationError + openErr.Error(),
		})

		return
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			s.log.Warn("Failed to close audio artifact '%s': %v", path, closeErr)
		}
	}()

	writer.Header().Set(headerContentType, contentTypeWAV)
	writer.Header().Set(headerContentDisposition, attachmentDisposition)

	info, statErr := file.Stat()
	if statErr == nil {
		writer.Header().Set(headerContentLength, strconv.FormatInt(info.Size(), 10))
	}

	_, copyErr := io.Copy(writer, file)
	if copyErr != nil {
		// The response has already started; all we can do is log.
		s.log.Warn("Failed to stream audio artifact '%s': %v", path, copyErr)
	}
}

func (s *Server) writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set(headerContentType, contentTypeJSON)
	writer.WriteHeader(status)

	encodeErr := json.NewEncoder(writer).Encode(body)
	if encodeErr != nil {
		s.log.Warn("Failed to encode response body: %v", encodeErr)
	}
}

// buildSegments converts the request context turns into engine segments.
// Turns missing text or speaker are skipped without error.
func buildSegments(turns []ContextTurn) []core.Segment {
	segments := make([]core.Segment, 0, len(turns))

	for _, turn := range turns {
		if turn.Text == nil || turn.Speaker == nil {
			continue
		}

		audio := turn.Audio
		if audio == nil {
			audio = []float32{}
		}

		segments = append(segments, core.Segment{
			Speaker: *turn.Speaker,
			Text:    *turn.Text,
			Audio:   audio,
		})
	}

	return segments
}

func rootMessage(state readiness.State) string {
	switch state {
	case readiness.Loading:
		return msgRootLoading
	case readiness.Failed:
		return msgRootFailed
	case readiness.Ready:
		return msgRootReady
	default:
		return msgRootReady
	}
}

func floatOrDefault(value *float64, fallback float64) float64 {
	if value == nil {
		return fallback
	}

	return *value
}

func intOrDefault(value *int, fallback int) int {
	if value == nil {
		return fallback
	}

	return *value
}
