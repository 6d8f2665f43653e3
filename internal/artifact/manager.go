// Package artifact manages the temporary audio files produced for each
// request: unique allocation, persistence through an encoder, and
// exactly-once deletion, either after the response is delivered or at
// shutdown.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-server/internal/core"
	"github.com/google/uuid"
)

const (
	artifactSuffix = ".wav"
	dirPermissions = 0o750
)

// ErrNilArtifact indicates a nil artifact handle was passed to the manager.
var ErrNilArtifact = errors.New("artifact cannot be nil")

// Artifact is one generated audio file pending delivery and deletion.
type Artifact struct {
	path string
}

// Path returns the location of the artifact on disk.
func (a *Artifact) Path() string {
	return a.path
}

// Manager owns the registry of live artifacts. Every mutation of the registry
// happens under the mutex: removal from the registry decides which of the
// post-delivery cleanup and the shutdown flush performs the deletion, so an
// artifact is deleted exactly once and a second attempt is a no-op.
type Manager struct {
	mutex   sync.Mutex
	live    map[string]struct{}
	dir     string
	encoder core.Encoder
	log     *logger.Logger
}

// NewManager creates a manager that allocates artifacts under dir, creating
// the directory if needed.
func NewManager(dir string, encoder core.Encoder, log *logger.Logger) (*Manager, error) {
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	return &Manager{
		mutex:   sync.Mutex{},
		live:    make(map[string]struct{}),
		dir:     dir,
		encoder: encoder,
		log:     log,
	}, nil
}

// Allocate reserves a uniquely-named artifact location and registers it as
// live. The returned artifact stays registered until it is released by its
// cleanup callback or by FlushAll.
func (m *Manager) Allocate() *Artifact {
	path := filepath.Join(m.dir, uuid.NewString()+artifactSuffix)

	m.mutex.Lock()
	m.live[path] = struct{}{}
	m.mutex.Unlock()

	return &Artifact{path: path}
}

// Write persists the samples to the artifact's location through the encoder.
func (m *Manager) Write(art *Artifact, samples []float32, sampleRate int) error {
	if art == nil {
		return ErrNilArtifact
	}

	err := m.encoder.Encode(art.path, samples, sampleRate)
	if err != nil {
		return fmt.Errorf("failed to encode audio artifact: %w", err)
	}

	return nil
}

// CleanupFunc returns the callback that releases the artifact after its bytes
// have been handed to the transport layer. Calling it more than once, or
// after FlushAll already swept the artifact, is a no-op. Deletion errors are
// logged, never returned.
func (m *Manager) CleanupFunc(art *Artifact) func() {
	return func() {
		if art == nil {
			return
		}

		m.release(art.path)
	}
}

// FlushAll force-deletes every remaining live artifact. It is invoked once at
// shutdown; per-file errors are logged so one failure does not block the
// rest.
func (m *Manager) FlushAll() {
	m.mutex.Lock()

	remaining := make([]string, 0, len(m.live))
	for path := range m.live {
		remaining = append(remaining, path)
	}

	clear(m.live)
	m.mutex.Unlock()

	for _, path := range remaining {
		m.remove(path)
	}

	if len(remaining) > 0 {
		m.log.Info("Flushed %d remaining audio artifacts", len(remaining))
	}
}

// Live returns the number of artifacts still registered.
func (m *Manager) Live() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.live)
}

// release removes the path from the registry and, when this caller won the
// removal, deletes the file.
func (m *Manager) release(path string) {
	m.mutex.Lock()
	_, isLive := m.live[path]
	delete(m.live, path)
	m.mutex.Unlock()

	if !isLive {
		return
	}

	m.remove(path)
}

func (m *Manager) remove(path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warn("Failed to remove audio artifact '%s': %v", path, err)
	}
}
