package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/qdrant"
)

// searchClient is a qdrant.Client whose Search results are scripted per
// collection.
type searchClient struct {
	results map[string][]*qdrant.ScoredPoint
	errs    map[string]error
	embeds  int
}

func (s *searchClient) Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*qdrant.ScoredPoint, error) {
	if err := s.errs[collection]; err != nil {
		return nil, err
	}
	points := s.results[collection]
	if uint64(len(points)) > limit {
		points = points[:limit]
	}
	return points, nil
}

func (s *searchClient) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	return nil
}
func (s *searchClient) DeleteCollection(ctx context.Context, name string) error { return nil }
func (s *searchClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	return true, nil
}
func (s *searchClient) GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	return &qdrant.CollectionInfo{Name: name}, nil
}
func (s *searchClient) Upsert(ctx context.Context, collection string, points []*qdrant.Point) error {
	return nil
}
func (s *searchClient) Health(ctx context.Context) error { return nil }
func (s *searchClient) Close() error                     { return nil }

// countingEmbedder records how many embeddings were produced.
type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{0.1, 0.2}, nil
}

func (e *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (e *countingEmbedder) Dimension() int { return 2 }
func (e *countingEmbedder) Close() error   { return nil }

func scored(id uint64, score float32, payload map[string]interface{}) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Point: qdrant.Point{ID: id, Payload: payload},
		Score: score,
	}
}

func TestSearch_UnconfiguredStore(t *testing.T) {
	retriever := NewRetriever(nil, &countingEmbedder{}, nil)

	hits, err := retriever.Search(context.Background(), "q", 2, []string{"documents"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, hits)
	assert.False(t, retriever.Available())
}

func TestSearch_MergesAndRanks(t *testing.T) {
	client := &searchClient{
		results: map[string][]*qdrant.ScoredPoint{
			"documents": {
				scored(1, 0.9, map[string]interface{}{"text": "doc one"}),
				scored(2, 0.7, map[string]interface{}{"text": "doc two"}),
			},
			"chat_messages": {
				scored(3, 0.95, map[string]interface{}{"content": "chat hit"}),
			},
		},
	}
	embedder := &countingEmbedder{}
	retriever := NewRetriever(client, embedder, nil)

	hits, err := retriever.Search(context.Background(), "quarterly report", 2, []string{"documents", "chat_messages"})
	require.NoError(t, err)

	require.Len(t, hits, 3)
	assert.Equal(t, []float64{0.95, 0.9, 0.7}, []float64{
		roundScore(hits[0].Score), roundScore(hits[1].Score), roundScore(hits[2].Score),
	}, "merged hits are globally sorted by score descending")
	assert.Equal(t, "chat_messages", hits[0].Collection)
	assert.LessOrEqual(t, len(hits), 2*2, "truncated to limit * collections")

	assert.Equal(t, 1, embedder.calls, "query is embedded exactly once, shared across collections")
}

// roundScore compensates the float32 -> float64 widening in hit scores.
func roundScore(s float64) float64 {
	return math.Round(s*1000) / 1000
}

func TestSearch_OneCollectionFailureDoesNotAbortOthers(t *testing.T) {
	client := &searchClient{
		results: map[string][]*qdrant.ScoredPoint{
			"documents": {scored(1, 0.8, map[string]interface{}{"text": "still here"})},
		},
		errs: map[string]error{
			"employees": errors.New("index corrupted"),
		},
	}
	retriever := NewRetriever(client, &countingEmbedder{}, nil)

	hits, err := retriever.Search(context.Background(), "q", 2, []string{"employees", "documents"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "still here", hits[0].Text)
}

func TestSearch_Truncation(t *testing.T) {
	client := &searchClient{
		results: map[string][]*qdrant.ScoredPoint{
			"a": {
				scored(1, 0.9, nil), scored(2, 0.8, nil), scored(3, 0.7, nil),
			},
			"b": {
				scored(4, 0.6, nil), scored(5, 0.5, nil), scored(6, 0.4, nil),
			},
		},
	}
	retriever := NewRetriever(client, &countingEmbedder{}, nil)

	hits, err := retriever.Search(context.Background(), "q", 2, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, hits, 4, "per-collection limit applies before merge, global cap after")
}

func TestSearch_MissingScoreSortsLast(t *testing.T) {
	client := &searchClient{
		results: map[string][]*qdrant.ScoredPoint{
			"documents": {
				scored(1, float32(math.NaN()), map[string]interface{}{"text": "unscored"}),
				scored(2, 0.2, map[string]interface{}{"text": "scored"}),
			},
		},
	}
	retriever := NewRetriever(client, &countingEmbedder{}, nil)

	hits, err := retriever.Search(context.Background(), "q", 2, []string{"documents"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "scored", hits[0].Text)
	assert.Equal(t, "unscored", hits[1].Text, "missing score is treated as minimal, never an error")
}

func TestSearch_StableOrderOnRepeatedCalls(t *testing.T) {
	client := &searchClient{
		results: map[string][]*qdrant.ScoredPoint{
			"a": {scored(1, 0.5, map[string]interface{}{"text": "first"})},
			"b": {scored(2, 0.5, map[string]interface{}{"text": "second"})},
		},
	}
	retriever := NewRetriever(client, &countingEmbedder{}, nil)

	first, err := retriever.Search(context.Background(), "q", 1, []string{"a", "b"})
	require.NoError(t, err)
	second, err := retriever.Search(context.Background(), "q", 1, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, first, second, "tied scores keep a stable relative order")
}

func TestResolveText_PriorityOrder(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
	}{
		{
			name:    "text wins over content",
			payload: map[string]interface{}{"text": "t", "content": "c"},
			want:    "t",
		},
		{
			name:    "content wins over title",
			payload: map[string]interface{}{"content": "c", "title": "ti"},
			want:    "c",
		},
		{
			name:    "empty text falls through",
			payload: map[string]interface{}{"text": "", "body": "b"},
			want:    "b",
		},
		{
			name:    "profile fields",
			payload: map[string]interface{}{"full_name": "Ada Lovelace", "email": "ada@example.com"},
			want:    "Ada Lovelace",
		},
		{
			name:    "provenance placeholder when no text fields",
			payload: map[string]interface{}{"record_id": "abc123", "collection": "documents"},
			want:    "[documents:abc123]",
		},
		{
			name:    "non-string value is stringified",
			payload: map[string]interface{}{"title": int64(42)},
			want:    "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit := normalizeHit(scored(9, 0.5, tt.payload), "documents")
			assert.Equal(t, tt.want, hit.Text)
		})
	}
}

func TestResolveText_NeverEmpty(t *testing.T) {
	// Even a nil payload yields renderable text.
	hit := normalizeHit(scored(77, 0.5, nil), "documents")
	assert.NotEmpty(t, hit.Text)
	assert.Equal(t, "[documents:77]", hit.Text)
}
