// Package model provides the one-shot asynchronous model loader that fetches
// weights, initializes the synthesis engine, and drives the readiness state.
package model

import (
	"context"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-server/internal/core"
	"github.com/book-expert/tts-server/internal/readiness"
)

// Loader performs the single load attempt of the process lifetime. Any
// failure marks the readiness status Failed and leaves the process serving;
// there is no retry or reload path by construction.
type Loader struct {
	store   core.WeightStore
	engine  core.SynthesisEngine
	status  *readiness.Status
	modelID string
	log     *logger.Logger
}

// NewLoader creates a loader for the given model identifier.
func NewLoader(
	store core.WeightStore,
	engine core.SynthesisEngine,
	status *readiness.Status,
	modelID string,
	log *logger.Logger,
) *Loader {
	return &Loader{
		store:   store,
		engine:  engine,
		status:  status,
		modelID: modelID,
		log:     log,
	}
}

// Load fetches the model weights, loads them into the engine, and marks the
// status Ready. It is intended to run once, on its own goroutine, started by
// the process lifecycle; requests arriving before it finishes are rejected by
// the readiness gate, never queued.
//
// The engine is fully initialized before MarkReady fires, so any request that
// observes Ready may use the engine.
func (l *Loader) Load(ctx context.Context) {
	l.log.Info("Loading synthesis model '%s'...", l.modelID)

	weightPath, fetchErr := l.store.Fetch(ctx, l.modelID)
	if fetchErr != nil {
		l.log.Error("Failed to fetch weights for model '%s': %v", l.modelID, fetchErr)
		l.status.MarkFailed()

		return
	}

	loadErr := l.engine.LoadWeights(ctx, weightPath)
	if loadErr != nil {
		l.log.Error("Failed to load weights for model '%s': %v", l.modelID, loadErr)
		l.status.MarkFailed()

		return
	}

	l.status.MarkReady()
	l.log.System("Model '%s' loaded successfully, service is ready", l.modelID)
}

// Engine returns the synthesis engine handle. It is safe to use only after
// the readiness status reports Ready.
func (l *Loader) Engine() core.SynthesisEngine {
	return l.engine
}
