// Package artifact_test tests the temp artifact manager.
package artifact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-server/internal/artifact"
	"github.com/book-expert/tts-server/internal/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 24000

func newTestManager(t *testing.T) *artifact.Manager {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "artifact-test.log")
	require.NoError(t, err)

	manager, err := artifact.NewManager(t.TempDir(), wav.NewCodec(), testLogger)
	require.NoError(t, err)

	return manager
}

func TestAllocate_RegistersLiveArtifact(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)

	first := manager.Allocate()
	second := manager.Allocate()

	assert.NotEqual(t, first.Path(), second.Path())
	assert.Equal(t, 2, manager.Live())
}

func TestWrite_PersistsSamples(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)
	art := manager.Allocate()

	err := manager.Write(art, make([]float32, testSampleRate), testSampleRate)
	require.NoError(t, err)

	_, statErr := os.Stat(art.Path())
	require.NoError(t, statErr)
}

func TestWrite_EmptySamplesFails(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)
	art := manager.Allocate()

	err := manager.Write(art, nil, testSampleRate)
	require.ErrorIs(t, err, wav.ErrNoSamples)
}

func TestCleanupFunc_DeletesExactlyOnce(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)
	art := manager.Allocate()

	err := manager.Write(art, []float32{0.1, 0.2}, testSampleRate)
	require.NoError(t, err)

	cleanup := manager.CleanupFunc(art)
	cleanup()

	assert.Equal(t, 0, manager.Live())

	_, statErr := os.Stat(art.Path())
	require.ErrorIs(t, statErr, os.ErrNotExist)

	// Double invocation must be a no-op, not an error.
	cleanup()

	assert.Equal(t, 0, manager.Live())
}

func TestCleanupFunc_AfterFlushIsNoOp(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)
	art := manager.Allocate()

	err := manager.Write(art, []float32{0.1}, testSampleRate)
	require.NoError(t, err)

	cleanup := manager.CleanupFunc(art)

	manager.FlushAll()
	cleanup()

	assert.Equal(t, 0, manager.Live())
}

func TestFlushAll_RemovesAllPendingArtifacts(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)

	first := manager.Allocate()
	second := manager.Allocate()

	require.NoError(t, manager.Write(first, []float32{0.1}, testSampleRate))
	require.NoError(t, manager.Write(second, []float32{0.2}, testSampleRate))

	manager.FlushAll()

	assert.Equal(t, 0, manager.Live())

	_, firstErr := os.Stat(first.Path())
	_, secondErr := os.Stat(second.Path())
	assert.ErrorIs(t, firstErr, os.ErrNotExist)
	assert.ErrorIs(t, secondErr, os.ErrNotExist)
}

func TestFlushAll_OneFailureDoesNotBlockTheRest(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)

	// Plant a non-empty directory at the first artifact's path so os.Remove
	// fails with a real error; the second must still be deleted.
	first := manager.Allocate()
	require.NoError(t, os.MkdirAll(first.Path(), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(first.Path(), "blocker"), []byte("x"), 0o600))

	second := manager.Allocate()
	require.NoError(t, manager.Write(second, []float32{0.2}, testSampleRate))

	manager.FlushAll()

	assert.Equal(t, 0, manager.Live())

	_, statErr := os.Stat(second.Path())
	assert.ErrorIs(t, statErr, os.ErrNotExist)

	// The failing entry stays on disk, but the registry no longer tracks it.
	info, firstStatErr := os.Stat(first.Path())
	require.NoError(t, firstStatErr)
	assert.True(t, info.IsDir())
}
