// Package weights provides the model weight store: a content-addressed NATS
// JetStream object store keyed by model identifier, fronted by a local file
// cache.
package weights

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Environment variable honored for cache placement.
const envCacheDir = "TTS_SERVER_CACHE_DIR"

// Directory and file layout.
const (
	appName         = "tts-server"
	weightsDirName  = "weights"
	dotCache        = ".cache"
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Store implements the core.WeightStore interface using a NATS JetStream
// object store, caching fetched weight files on local disk.
type Store struct {
	bucket   string
	store    nats.ObjectStore
	cacheDir string
	log      *logger.Logger
}

// New creates and initializes a Store bound to the given bucket, creating the
// bucket if it does not exist and ensuring the local cache directory is in
// place.
func New(
	jetstreamContext nats.JetStreamContext,
	bucketName, cacheDir string,
	log *logger.Logger,
) (*Store, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Model weight storage for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf(
					"failed to bind to existing weight bucket '%s': %w",
					bucketName, err,
				)
			}
		} else {
			// For any other error, fail.
			return nil, fmt.Errorf(
				"failed to create weight bucket '%s': %w",
				bucketName, err,
			)
		}
	}

	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}

	mkdirErr := os.MkdirAll(cacheDir, dirPermissions)
	if mkdirErr != nil {
		return nil, fmt.Errorf(
			"failed to create weight cache directory %s: %w",
			cacheDir, mkdirErr,
		)
	}

	return &Store{
		bucket:   bucketName,
		store:    store,
		cacheDir: cacheDir,
		log:      log,
	}, nil
}

// Fetch resolves the model identifier to a local weight file, downloading it
// from the object store when the cache does not already hold it. The cache is
// content-addressed by model ID, so a cached file is returned without any
// network I/O.
func (s *Store) Fetch(ctx context.Context, modelID string) (string, error) {
	localPath := filepath.Join(s.cacheDir, filepath.Base(modelID))

	_, statErr := os.Stat(localPath)
	if statErr == nil {
		s.log.Info("Weight cache hit for model '%s': %s", modelID, localPath)

		return localPath, nil
	}

	data, fetchErr := s.download(ctx, modelID)
	if fetchErr != nil {
		return "", fetchErr
	}

	writeErr := os.WriteFile(localPath, data, filePermissions)
	if writeErr != nil {
		return "", fmt.Errorf(
			"failed to cache weights for model '%s': %w",
			modelID, writeErr,
		)
	}

	s.log.Info(
		"Fetched weights for model '%s' (%d bytes) into %s",
		modelID, len(data), localPath,
	)

	return localPath, nil
}

// download retrieves the raw weight object from the bucket.
func (s *Store) download(_ context.Context, modelID string) ([]byte, error) {
	obj, err := s.store.Get(modelID)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to get weights '%s' from bucket '%s': %w",
			modelID, s.bucket, err,
		)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read weights '%s': %w", modelID, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close weights '%s': %w", modelID, closeErr)
	}

	return data, nil
}

// DefaultCacheDir returns the weight cache directory, honoring the
// TTS_SERVER_CACHE_DIR environment variable and falling back to a standard
// user-based cache location.
func DefaultCacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, weightsDirName)
	}

	return filepath.Join(homeDir, dotCache, appName, weightsDirName)
}
