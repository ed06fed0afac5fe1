// Package index owns per-collection vector index lifecycle: existence
// checks, dimension-aware creation, mismatch detection and destructive
// recreation.
//
// Embedding model upgrades change vector dimensionality. A stale index is
// detectable through CheckDimension but is never fixed automatically;
// RecreateAll is the operator-invoked recovery path and deletes every point
// in the named collections.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/qdrant"
)

// Check is the result of a read-only dimension comparison.
type Check struct {
	// OK is true when the collection is absent or matches the expected
	// dimension. An absent collection is fine: the first ingestion
	// creates it with the live dimension.
	OK bool

	// Existing is the collection's configured dimension, 0 when absent.
	Existing int
}

// Manager manages vector index lifecycle for logical collections.
type Manager struct {
	client qdrant.Client
	logger *zap.Logger
}

// NewManager creates an index manager over the given client.
func NewManager(client qdrant.Client, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{client: client, logger: logger}
}

// Ensure makes sure an index named collection exists with the given
// dimension. It is idempotent: an existing index with the same dimension is
// left untouched. An existing index with a different dimension is NOT
// auto-fixed; the mismatch is logged and left for the caller to detect via
// CheckDimension.
func (m *Manager) Ensure(ctx context.Context, collection string, dimension int) error {
	exists, err := m.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", collection, err)
	}

	if !exists {
		if err := m.client.CreateCollection(ctx, collection, uint64(dimension)); err != nil {
			return fmt.Errorf("creating collection %s: %w", collection, err)
		}
		m.logger.Info("created vector index",
			zap.String("collection", collection),
			zap.Int("dimension", dimension),
		)
		return nil
	}

	info, err := m.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return fmt.Errorf("inspecting collection %s: %w", collection, err)
	}
	if int(info.VectorSize) != dimension {
		m.logger.Warn("vector index dimension mismatch, leaving index untouched",
			zap.String("collection", collection),
			zap.Int("existing_dimension", int(info.VectorSize)),
			zap.Int("expected_dimension", dimension),
		)
	}
	return nil
}

// CheckDimension compares the collection's configured dimension against the
// expected one. It is read-only and never modifies the index.
func (m *Manager) CheckDimension(ctx context.Context, collection string, expected int) (Check, error) {
	exists, err := m.client.CollectionExists(ctx, collection)
	if err != nil {
		return Check{}, fmt.Errorf("checking collection %s: %w", collection, err)
	}
	if !exists {
		return Check{OK: true}, nil
	}

	info, err := m.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return Check{}, fmt.Errorf("inspecting collection %s: %w", collection, err)
	}
	existing := int(info.VectorSize)
	return Check{OK: existing == expected, Existing: existing}, nil
}

// Recreate destructively rebuilds the collection's index with the given
// dimension: every stored point is deleted. It is idempotent when the
// existing dimension already matches the target; in that case nothing is
// deleted and the points survive.
func (m *Manager) Recreate(ctx context.Context, collection string, dimension int) error {
	exists, err := m.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", collection, err)
	}

	if exists {
		info, err := m.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			return fmt.Errorf("inspecting collection %s: %w", collection, err)
		}
		if int(info.VectorSize) == dimension {
			m.logger.Info("vector index already at target dimension, skipping recreate",
				zap.String("collection", collection),
				zap.Int("dimension", dimension),
			)
			return nil
		}
		if err := m.client.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("deleting collection %s: %w", collection, err)
		}
		m.logger.Warn("deleted vector index for recreation",
			zap.String("collection", collection),
			zap.Int("old_dimension", int(info.VectorSize)),
			zap.Uint64("dropped_points", info.PointCount),
		)
	}

	if err := m.client.CreateCollection(ctx, collection, uint64(dimension)); err != nil {
		return fmt.Errorf("creating collection %s: %w", collection, err)
	}
	m.logger.Info("recreated vector index",
		zap.String("collection", collection),
		zap.Int("dimension", dimension),
	)
	return nil
}

// RecreateAll applies Recreate to every named collection independently and
// reports per-collection success. One collection's failure never blocks the
// others, and no error propagates to the caller.
func (m *Manager) RecreateAll(ctx context.Context, collections []string, dimension int) map[string]bool {
	results := make(map[string]bool, len(collections))
	for _, collection := range collections {
		if err := m.Recreate(ctx, collection, dimension); err != nil {
			m.logger.Error("failed to recreate vector index",
				zap.String("collection", collection),
				zap.Error(err),
			)
			results[collection] = false
			continue
		}
		results[collection] = true
	}
	return results
}
