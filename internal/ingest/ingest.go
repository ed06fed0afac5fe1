// Package ingest embeds record text and upserts it into the vector store.
//
// Ingestion is a best-effort side effect of a record store write that has
// already succeeded: it reports success as a boolean and never returns an
// error to the caller.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/embedding"
	"github.com/fyrsmithlabs/knowledged/internal/index"
	"github.com/fyrsmithlabs/knowledged/internal/qdrant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorid"
)

// Ingestor writes embedded records into per-collection vector indexes.
type Ingestor struct {
	client   qdrant.Client
	indexes  *index.Manager
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewIngestor creates an ingestor. client may be nil when no vector store is
// configured; every Ingest call then reports false without side effects.
func NewIngestor(client qdrant.Client, indexes *index.Manager, embedder embedding.Provider, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		client:   client,
		indexes:  indexes,
		embedder: embedder,
		logger:   logger,
	}
}

// Ingest embeds text and upserts it into collection's index, keyed by the
// point id derived from recordID and tagged with provenance payload
// {record_id, collection}. Re-ingesting the same record overwrites its
// existing point.
//
// The text is embedded before any index work: the first embed probes the
// model, so a lazily created index always gets the live output dimension,
// never a stale configured default. It fails closed on a dimension mismatch
// between the live model and an existing index rather than writing a
// shape-inconsistent vector. All failure modes funnel through one
// log-and-return-false boundary.
func (i *Ingestor) Ingest(ctx context.Context, collection, recordID, text string) bool {
	if i.client == nil {
		return false
	}

	log := i.logger.With(
		zap.String("collection", collection),
		zap.String("record_id", recordID),
	)

	vector, err := i.embedder.EmbedQuery(ctx, text)
	if err != nil {
		log.Warn("ingestion skipped: embedding failed", zap.Error(err))
		return false
	}

	dimension := i.embedder.Dimension()
	// Defensive check against a degraded embedding provider.
	if len(vector) != dimension {
		log.Warn("ingestion skipped: embedding length does not match model dimension",
			zap.Int("vector_length", len(vector)),
			zap.Int("expected_dimension", dimension),
		)
		return false
	}

	check, err := i.indexes.CheckDimension(ctx, collection, dimension)
	if err != nil {
		log.Warn("ingestion skipped: dimension check failed", zap.Error(err))
		return false
	}
	if !check.OK {
		log.Warn("ingestion skipped: vector index dimension mismatch",
			zap.Int("existing_dimension", check.Existing),
			zap.Int("expected_dimension", dimension),
		)
		return false
	}

	if err := i.indexes.Ensure(ctx, collection, dimension); err != nil {
		log.Warn("ingestion skipped: could not ensure vector index", zap.Error(err))
		return false
	}

	point := &qdrant.Point{
		ID:     vectorid.FromRecordID(recordID),
		Vector: vector,
		Payload: map[string]interface{}{
			"record_id":  recordID,
			"collection": collection,
		},
	}

	if err := i.client.Upsert(ctx, collection, []*qdrant.Point{point}); err != nil {
		log.Warn("ingestion failed: upsert error", zap.Error(err))
		return false
	}

	log.Debug("record ingested", zap.Uint64("vector_id", point.ID))
	return true
}
