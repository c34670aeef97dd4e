package vector

import (
	"fmt"
	"os"

	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/internal/errdefs"
	"go.uber.org/zap"
)

// Backend represents the type of vector store to use.
type Backend string

const (
	// BackendMemory uses in-memory brute-force search persisted to a single file.
	BackendMemory Backend = "memory"
	// BackendQdrant stores each namespace in its own Qdrant collection.
	BackendQdrant Backend = "qdrant"
)

// NewStore creates the vector store selected by cfg.Vector.Backend. A memory
// store is loaded from cfg.Storage.IndexPath when the file exists.
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch Backend(cfg.Vector.Backend) {
	case BackendMemory, "":
		store := NewMemoryStore(WithLogger(logger))
		if err := store.Load(cfg.Storage.IndexPath); err != nil {
			return nil, fmt.Errorf("failed to load vector index: %w", err)
		}
		return store, nil
	case BackendQdrant:
		qc := cfg.Qdrant
		apiKey := ""
		if qc.APIKeyEnv != "" {
			apiKey = os.Getenv(qc.APIKeyEnv)
		}
		return NewQdrantStore(QdrantOptions{
			Host:       qc.Host,
			Port:       qc.Port,
			UseTLS:     qc.UseTLS,
			APIKey:     apiKey,
			PoolSize:   qc.PoolSize,
			Collection: cfg.Retrieval.Collection,
		}, WithLogger(logger))
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q (supported: memory, qdrant)", errdefs.ErrConfig, cfg.Vector.Backend)
	}
}
