// Package retrieval implements multi-collection semantic search over the
// vector store.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/embedding"
	"github.com/fyrsmithlabs/knowledged/internal/qdrant"
)

// ErrUnavailable is returned when no vector store is configured. It
// distinguishes "retrieval unavailable" from "retrieval found nothing".
var ErrUnavailable = errors.New("vector store not configured")

// textFields is the fixed priority order for resolving a hit's display
// text from its payload. First non-empty wins.
var textFields = []string{"text", "content", "body", "title", "full_name", "email"}

// Hit is one normalized search result. All vector store result shapes are
// converted into this form at the ingress boundary; downstream code never
// branches on shape again.
type Hit struct {
	// ID is the vector store point id.
	ID uint64 `json:"id"`

	// Score is the similarity score. NaN marks a hit whose score was
	// missing; merge ordering treats it as the lowest possible value.
	Score float64 `json:"score"`

	// Payload is the stored provenance metadata.
	Payload map[string]interface{} `json:"payload"`

	// Text is the resolved display text, never empty.
	Text string `json:"text"`

	// Collection is the source collection.
	Collection string `json:"collection"`
}

// RecordID returns the record store identifier from the hit's payload, or
// "" when absent.
func (h Hit) RecordID() string {
	id, _ := h.Payload["record_id"].(string)
	return id
}

// Retriever searches every configured collection with a single query
// embedding and merges the results.
type Retriever struct {
	client   qdrant.Client
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewRetriever creates a retriever. client may be nil when no vector store
// is configured; Search then reports ErrUnavailable.
func NewRetriever(client qdrant.Client, embedder embedding.Provider, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{client: client, embedder: embedder, logger: logger}
}

// Available reports whether a vector store is configured.
func (r *Retriever) Available() bool {
	return r.client != nil
}

// Search embeds the query once, searches every collection in order with the
// given per-collection budget, and returns the merged hits sorted by score
// descending, truncated to perCollectionLimit * len(collections).
//
// A failure in one collection's search is logged and contributes zero hits;
// it never aborts the other collections. Ordering among equal scores is
// stable across repeated identical calls within a process run.
func (r *Retriever) Search(ctx context.Context, query string, perCollectionLimit int, collections []string) ([]Hit, error) {
	if r.client == nil {
		return nil, ErrUnavailable
	}
	if perCollectionLimit <= 0 {
		perCollectionLimit = 1
	}

	// One embedding shared across all collection searches.
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var merged []Hit
	for _, collection := range collections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points, err := r.client.Search(ctx, collection, vector, uint64(perCollectionLimit))
		if err != nil {
			r.logger.Warn("collection search failed, continuing",
				zap.String("collection", collection),
				zap.Error(err),
			)
			continue
		}
		for _, point := range points {
			merged = append(merged, normalizeHit(point, collection))
		}
	}

	// Stable sort keeps tie order deterministic for identical input.
	sort.SliceStable(merged, func(i, j int) bool {
		return sortScore(merged[i].Score) > sortScore(merged[j].Score)
	})

	limit := perCollectionLimit * len(collections)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// sortScore maps a missing (NaN) score to the lowest possible value so the
// merge never errors on it.
func sortScore(score float64) float64 {
	if math.IsNaN(score) {
		return math.Inf(-1)
	}
	return score
}

// normalizeHit converts a raw scored point into the canonical Hit shape.
func normalizeHit(point *qdrant.ScoredPoint, collection string) Hit {
	hit := Hit{
		ID:         point.ID,
		Score:      float64(point.Score),
		Payload:    point.Payload,
		Collection: collection,
	}
	hit.Text = resolveText(hit)
	return hit
}

// resolveText picks the hit's display text by the fixed payload field
// priority order. Absent all candidates it synthesizes a provenance
// placeholder; the result is never empty so prompt assembly always has
// renderable text.
func resolveText(hit Hit) string {
	for _, field := range textFields {
		if value, ok := hit.Payload[field]; ok {
			if s := stringifyValue(value); s != "" {
				return s
			}
		}
	}

	if recordID := hit.RecordID(); recordID != "" {
		return fmt.Sprintf("[%s:%s]", hit.Collection, recordID)
	}
	if len(hit.Payload) > 0 {
		if raw, err := json.Marshal(hit.Payload); err == nil {
			return string(raw)
		}
	}
	return fmt.Sprintf("[%s:%d]", hit.Collection, hit.ID)
}

func stringifyValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
