package embedding

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// probeText is the throwaway input used to observe the model's output length.
const probeText = "test"

// probeTimeout bounds the one-shot initialization probe.
const probeTimeout = 30 * time.Second

// Lazy wraps a Provider with init-on-first-use semantics.
//
// The underlying model is probed at most once, on the first embed call. A
// successful probe records the observed output dimension and is never
// repeated. A failed probe sets a permanent failure flag: every later embed
// returns a zero vector of Dimension() length so callers always get a
// degraded-but-shaped result instead of a propagating error. Per-call embed
// failures after a healthy probe degrade the same way.
//
// Dimension never blocks on initialization: before the first successful
// probe it reports the provider's configured default.
type Lazy struct {
	inner  Provider
	logger *zap.Logger

	once     sync.Once
	failed   atomic.Bool
	observed atomic.Int64
}

// NewLazy wraps inner with the lazy initialization lifecycle.
func NewLazy(inner Provider, logger *zap.Logger) *Lazy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lazy{inner: inner, logger: logger}
}

// EmbedQuery embeds a single text, degrading to a zero vector on any failure.
func (l *Lazy) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	l.init(ctx)
	if l.failed.Load() {
		return l.zeroVector(), nil
	}

	vec, err := l.inner.EmbedQuery(ctx, text)
	if err != nil {
		l.logger.Error("embedding failed, returning zero vector", zap.Error(err))
		return l.zeroVector(), nil
	}
	l.observed.Store(int64(len(vec)))
	return vec, nil
}

// EmbedDocuments embeds multiple texts, degrading to zero vectors on any failure.
func (l *Lazy) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	l.init(ctx)
	if l.failed.Load() {
		return l.zeroVectors(len(texts)), nil
	}

	vecs, err := l.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		l.logger.Error("batch embedding failed, returning zero vectors", zap.Error(err))
		return l.zeroVectors(len(texts)), nil
	}
	if len(vecs) > 0 {
		l.observed.Store(int64(len(vecs[0])))
	}
	return vecs, nil
}

// Dimension returns the last observed output length, or the provider's
// configured default if no embedding has succeeded yet.
func (l *Lazy) Dimension() int {
	if d := l.observed.Load(); d > 0 {
		return int(d)
	}
	return l.inner.Dimension()
}

// Close releases the underlying provider.
func (l *Lazy) Close() error {
	return l.inner.Close()
}

// init probes the underlying model exactly once. A failed probe is recorded
// and never retried.
//
// The probe runs detached from the triggering request's context: the
// failure flag is permanent for the process, so a client disconnect on the
// very first call must not condemn a healthy model.
func (l *Lazy) init(ctx context.Context) {
	l.once.Do(func() {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()

		vec, err := l.inner.EmbedQuery(probeCtx, probeText)
		if err != nil {
			l.failed.Store(true)
			l.logger.Error("embedding model initialization failed, embeddings disabled",
				zap.Error(err),
				zap.Int("fallback_dimension", l.inner.Dimension()),
			)
			return
		}
		l.observed.Store(int64(len(vec)))
		l.logger.Info("embedding model initialized", zap.Int("dimension", len(vec)))
	})
}

func (l *Lazy) zeroVector() []float32 {
	return make([]float32, l.Dimension())
}

func (l *Lazy) zeroVectors(n int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = l.zeroVector()
	}
	return vecs
}

var _ Provider = (*Lazy)(nil)
