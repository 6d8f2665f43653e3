// main package for the tts-client command-line tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/tts-server/internal/client"
)

// Flag descriptions.
const (
	flagURLDesc     = "Base URL of the tts-server"
	flagTextDesc    = "Text to convert to speech"
	flagSpeakerDesc = "Speaker identifier"
	flagOutputDesc  = "Output file path (.wav)"
	flagHealthDesc  = "Check tts-server health and exit"
	flagTimeoutDesc = "Request timeout in seconds"
)

// Flag names.
const (
	flagURL     = "url"
	flagText    = "text"
	flagSpeaker = "speaker"
	flagOutput  = "output"
	flagHealth  = "health"
	flagTimeout = "timeout"
)

// Defaults.
const (
	defaultURL            = "http://localhost:3001"
	defaultOutputFile     = "output.wav"
	defaultTimeoutSeconds = 300
	filePermissions       = 0o600
)

// ErrTextRequired indicates no text was provided for synthesis.
var ErrTextRequired = errors.New("--text must be provided")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	url     string
	text    string
	speaker int
	output  string
	health  bool
	timeout int
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	apiClient := client.New(flags.url, time.Duration(flags.timeout)*time.Second)
	ctx := context.Background()

	if flags.health {
		return handleHealthCheck(ctx, apiClient)
	}

	return handleSynthesis(ctx, apiClient, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.url, flagURL, defaultURL, flagURLDesc)
	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.IntVar(&flags.speaker, flagSpeaker, 0, flagSpeakerDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.IntVar(&flags.timeout, flagTimeout, defaultTimeoutSeconds, flagTimeoutDesc)
	flag.Parse()

	return flags
}

func handleHealthCheck(ctx context.Context, apiClient *client.Client) error {
	status, err := apiClient.Health(ctx)
	if err != nil {
		return fmt.Errorf("tts-server is not healthy: %w", err)
	}

	fmt.Printf("tts-server status: %s\n", status)

	return nil
}

func handleSynthesis(ctx context.Context, apiClient *client.Client, flags appFlags) error {
	if flags.text == "" {
		return ErrTextRequired
	}

	audio, err := apiClient.Synthesize(ctx, client.Request{
		Text:             flags.text,
		Speaker:          flags.speaker,
		Temperature:      nil,
		TopK:             nil,
		MaxAudioLengthMS: nil,
		Context:          nil,
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}

	writeErr := os.WriteFile(flags.output, audio, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	fmt.Printf("Generated: %s (%d bytes)\n", flags.output, len(audio))

	return nil
}
