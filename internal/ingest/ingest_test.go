package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/embedding"
	"github.com/fyrsmithlabs/knowledged/internal/index"
	"github.com/fyrsmithlabs/knowledged/internal/qdrant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorid"
)

// fakeClient is an in-memory qdrant.Client.
type fakeClient struct {
	collections map[string]*fakeCollection
	failUpsert  error
}

type fakeCollection struct {
	size   uint64
	points map[uint64]*qdrant.Point
}

func newFakeClient() *fakeClient {
	return &fakeClient{collections: make(map[string]*fakeCollection)}
}

func (f *fakeClient) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	f.collections[name] = &fakeCollection{size: vectorSize, points: make(map[uint64]*qdrant.Point)}
	return nil
}

func (f *fakeClient) DeleteCollection(ctx context.Context, name string) error {
	delete(f.collections, name)
	return nil
}

func (f *fakeClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeClient) GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	col, ok := f.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return &qdrant.CollectionInfo{Name: name, VectorSize: col.size, PointCount: uint64(len(col.points))}, nil
}

func (f *fakeClient) Upsert(ctx context.Context, collection string, points []*qdrant.Point) error {
	if f.failUpsert != nil {
		return f.failUpsert
	}
	col, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s not found", collection)
	}
	for _, p := range points {
		col.points[p.ID] = p
	}
	return nil
}

func (f *fakeClient) Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*qdrant.ScoredPoint, error) {
	return nil, nil
}

func (f *fakeClient) Health(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                     { return nil }

// fixedEmbedder returns a constant vector of the configured length.
type fixedEmbedder struct {
	dimension int
	vectorLen int
	err       error
}

func (e *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, e.vectorLen), nil
}

func (e *fixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = make([]float32, e.vectorLen)
	}
	return vecs, nil
}

func (e *fixedEmbedder) Dimension() int { return e.dimension }
func (e *fixedEmbedder) Close() error   { return nil }

func newIngestor(client *fakeClient, embedder *fixedEmbedder) *Ingestor {
	var c qdrant.Client
	var indexes *index.Manager
	if client != nil {
		c = client
		indexes = index.NewManager(client, nil)
	}
	return NewIngestor(c, indexes, embedder, nil)
}

func TestIngest_UnconfiguredStoreReturnsFalse(t *testing.T) {
	ingestor := newIngestor(nil, &fixedEmbedder{dimension: 4, vectorLen: 4})

	assert.False(t, ingestor.Ingest(context.Background(), "documents", "abc123", "text"))
}

func TestIngest_CreatesIndexAndUpserts(t *testing.T) {
	client := newFakeClient()
	ingestor := newIngestor(client, &fixedEmbedder{dimension: 384, vectorLen: 384})

	ok := ingestor.Ingest(context.Background(), "documents", "abc123", "quarterly report Q3")
	require.True(t, ok)

	// The index was created lazily with the live dimension.
	info, err := client.GetCollectionInfo(context.Background(), "documents")
	require.NoError(t, err)
	assert.Equal(t, uint64(384), info.VectorSize)
	assert.Equal(t, uint64(1), info.PointCount)

	// The point is keyed by the derived id and tagged with provenance.
	point := client.collections["documents"].points[vectorid.FromRecordID("abc123")]
	require.NotNil(t, point)
	assert.Equal(t, "abc123", point.Payload["record_id"])
	assert.Equal(t, "documents", point.Payload["collection"])
	assert.Len(t, point.Vector, 384)
}

// coldProvider reports a configured default dimension that differs from the
// model's real output length, the state of a provider that has never been
// probed.
type coldProvider struct {
	liveDimension int
}

func (p *coldProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, p.liveDimension), nil
}

func (p *coldProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = make([]float32, p.liveDimension)
	}
	return vecs, nil
}

func (p *coldProvider) Dimension() int { return 1024 }
func (p *coldProvider) Close() error   { return nil }

func TestIngest_ColdStartCreatesIndexAtLiveDimension(t *testing.T) {
	client := newFakeClient()
	// Configured default 1024, real model output 768. The first ingestion
	// on a fresh process must probe the model before sizing the index.
	embedder := embedding.NewLazy(&coldProvider{liveDimension: 768}, nil)
	ingestor := NewIngestor(client, index.NewManager(client, nil), embedder, nil)

	ok := ingestor.Ingest(context.Background(), "documents", "abc123", "quarterly report Q3")
	require.True(t, ok)

	info, err := client.GetCollectionInfo(context.Background(), "documents")
	require.NoError(t, err)
	assert.Equal(t, uint64(768), info.VectorSize, "index is sized by the live model, not the configured default")
	assert.Equal(t, uint64(1), info.PointCount)

	// The next ingestion sees a matching index, not a self-inflicted mismatch.
	require.True(t, ingestor.Ingest(context.Background(), "documents", "doc-2", "more text"))
	info, err = client.GetCollectionInfo(context.Background(), "documents")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.PointCount)
}

func TestIngest_OverwritesSameRecord(t *testing.T) {
	client := newFakeClient()
	ingestor := newIngestor(client, &fixedEmbedder{dimension: 8, vectorLen: 8})
	ctx := context.Background()

	require.True(t, ingestor.Ingest(ctx, "documents", "abc123", "v1"))
	require.True(t, ingestor.Ingest(ctx, "documents", "abc123", "v2"))

	info, err := client.GetCollectionInfo(ctx, "documents")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.PointCount, "re-ingestion overwrites, never duplicates")
}

func TestIngest_FailsClosedOnDimensionMismatch(t *testing.T) {
	client := newFakeClient()
	require.NoError(t, client.CreateCollection(context.Background(), "documents", 384))

	// Model now produces 1024-dim vectors; the 384-dim index is stale.
	ingestor := newIngestor(client, &fixedEmbedder{dimension: 1024, vectorLen: 1024})

	ok := ingestor.Ingest(context.Background(), "documents", "abc123", "text")
	assert.False(t, ok)
	assert.Zero(t, len(client.collections["documents"].points), "no shape-inconsistent vector is written")
}

func TestIngest_RejectsDegradedEmbedding(t *testing.T) {
	client := newFakeClient()
	// Provider claims 384 but produces 16-long vectors.
	ingestor := newIngestor(client, &fixedEmbedder{dimension: 384, vectorLen: 16})

	assert.False(t, ingestor.Ingest(context.Background(), "documents", "abc123", "text"))
}

func TestIngest_EmbeddingErrorReturnsFalse(t *testing.T) {
	client := newFakeClient()
	ingestor := newIngestor(client, &fixedEmbedder{dimension: 8, vectorLen: 8, err: errors.New("model down")})

	assert.False(t, ingestor.Ingest(context.Background(), "documents", "abc123", "text"))
}

func TestIngest_UpsertErrorReturnsFalse(t *testing.T) {
	client := newFakeClient()
	client.failUpsert = errors.New("qdrant unreachable")
	ingestor := newIngestor(client, &fixedEmbedder{dimension: 8, vectorLen: 8})

	assert.False(t, ingestor.Ingest(context.Background(), "documents", "abc123", "text"))
}
