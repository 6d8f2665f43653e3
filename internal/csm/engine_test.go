// Package csm_test tests the csm-generate inference engine wrapper.
package csm_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-server/internal/core"
	"github.com/book-expert/tts-server/internal/csm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinary is a shell script standing in for csm-generate: it finds the
// --out argument and writes 8 bytes (two float32 zero samples) to it.
const fakeBinary = `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "--out" ]; then out="$arg"; fi
  prev="$arg"
done
printf '\0\0\0\0\0\0\0\0' > "$out"
`

func newTestEngine(t *testing.T, script string) *csm.Engine {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "csm-generate")
	require.NoError(t, os.WriteFile(binaryPath, []byte(script), 0o700))

	testLogger, err := logger.New(t.TempDir(), "csm-test.log")
	require.NoError(t, err)

	engine, err := csm.New(binaryPath, testLogger)
	require.NoError(t, err)

	return engine
}

func loadTestWeights(t *testing.T, engine *csm.Engine) {
	t.Helper()

	weightsPath := filepath.Join(t.TempDir(), "weights.safetensors")
	require.NoError(t, os.WriteFile(weightsPath, []byte("fake weights"), 0o600))
	require.NoError(t, engine.LoadWeights(context.Background(), weightsPath))
}

func TestNew_EmptyBinaryPath(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "csm-test.log")
	require.NoError(t, err)

	_, err = csm.New("", testLogger)
	require.ErrorIs(t, err, csm.ErrBinaryPathEmpty)
}

func TestLoadWeights_MissingFile(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, fakeBinary)

	err := engine.LoadWeights(context.Background(), "/no/such/weights.safetensors")
	require.Error(t, err)
}

func TestGenerate_BeforeLoadWeights(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, fakeBinary)

	_, err := engine.Generate(
		context.Background(),
		"hello", 0, nil, 10000,
		core.SamplingParams{Temperature: 0.8, TopK: 50},
	)
	require.ErrorIs(t, err, csm.ErrWeightsNotLoaded)
}

func TestGenerate_DecodesBinaryOutput(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, fakeBinary)
	loadTestWeights(t, engine)

	segments := []core.Segment{
		{Speaker: 0, Text: "previous turn", Audio: []float32{0.5}},
	}

	samples, err := engine.Generate(
		context.Background(),
		"hello", 1, segments, 10000,
		core.SamplingParams{Temperature: 0.8, TopK: 50},
	)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0}, samples)
}

func TestGenerate_BinaryFailure(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, "#!/bin/sh\necho 'boom' >&2\nexit 1\n")
	loadTestWeights(t, engine)

	_, err := engine.Generate(
		context.Background(),
		"hello", 0, nil, 10000,
		core.SamplingParams{Temperature: 0.8, TopK: 50},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestGenerate_TruncatedOutput(t *testing.T) {
	t.Parallel()

	// Writes 3 bytes: not a whole float32 sample.
	script := `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "--out" ]; then out="$arg"; fi
  prev="$arg"
done
printf '\0\0\0' > "$out"
`

	engine := newTestEngine(t, script)
	loadTestWeights(t, engine)

	_, err := engine.Generate(
		context.Background(),
		"hello", 0, nil, 10000,
		core.SamplingParams{Temperature: 0.8, TopK: 50},
	)
	require.ErrorIs(t, err, csm.ErrTruncatedOutput)
}

func TestGenerate_ForwardsTemperatureLosslessly(t *testing.T) {
	t.Parallel()

	// Exits nonzero unless the temperature argument arrives with full
	// precision, so a lossy formatting regression fails the call.
	script := `#!/bin/sh
out=""
temp=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "--out" ]; then out="$arg"; fi
  if [ "$prev" = "--temperature" ]; then temp="$arg"; fi
  prev="$arg"
done
if [ "$temp" != "0.825" ]; then echo "lossy temperature: $temp" >&2; exit 1; fi
printf '\0\0\0\0' > "$out"
`

	engine := newTestEngine(t, script)
	loadTestWeights(t, engine)

	samples, err := engine.Generate(
		context.Background(),
		"hello", 0, nil, 10000,
		core.SamplingParams{Temperature: 0.825, TopK: 50},
	)
	require.NoError(t, err)

	assert.Equal(t, []float32{0}, samples)
}

func TestGenerate_LeavesNoTempFilesBehind(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("TMPDIR", tempDir)

	engine := newTestEngine(t, fakeBinary)
	loadTestWeights(t, engine)

	_, err := engine.Generate(
		context.Background(),
		"hello", 0, nil, 10000,
		core.SamplingParams{Temperature: 0.8, TopK: 50},
	)
	require.NoError(t, err)

	failing := newTestEngine(t, "#!/bin/sh\nexit 1\n")
	loadTestWeights(t, failing)

	_, err = failing.Generate(
		context.Background(),
		"hello", 0, nil, 10000,
		core.SamplingParams{Temperature: 0.8, TopK: 50},
	)
	require.Error(t, err)

	entries, readErr := os.ReadDir(tempDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}
