// Package rag orchestrates retrieval, prompt assembly and generation for
// knowledge base queries.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/llm"
	"github.com/fyrsmithlabs/knowledged/internal/prompt"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
)

// ErrUnavailable is returned when the knowledge base cannot serve queries
// because no vector store is configured.
var ErrUnavailable = errors.New("knowledge base not configured")

// Fallback answers embedded when the language model cannot produce one.
// The two cases are kept distinct so operators can tell a missing
// credential from a failing endpoint.
const (
	notConfiguredAnswer    = "I found relevant documents, but the language model is not configured, so I cannot compose an answer. The sources below may still help."
	generationFailedAnswer = "I found relevant documents, but the language model call failed, so I cannot compose an answer right now. The sources below may still help."
)

// Searcher is the retrieval collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, perCollectionLimit int, collections []string) ([]retrieval.Hit, error)
}

// Generator is the language model collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answer is the result of one knowledge base query.
type Answer struct {
	Answer    string          `json:"answer"`
	Sources   string          `json:"sources"`
	Documents []retrieval.Hit `json:"documents"`
}

// Service answers queries over the knowledge base.
type Service struct {
	searcher    Searcher
	generator   Generator
	collections []string
	logger      *zap.Logger
}

// NewService creates a query service searching the given collections in order.
func NewService(searcher Searcher, generator Generator, collections []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		searcher:    searcher,
		generator:   generator,
		collections: collections,
		logger:      logger,
	}
}

// Query retrieves context for the query, assembles a prompt with the given
// conversation history and asks the language model for an answer.
//
// It returns ErrUnavailable when retrieval is unavailable. A language model
// failure is not an error: the answer carries a fallback sentence and the
// retrieved sources are still returned.
func (s *Service) Query(ctx context.Context, query string, topK int, history []prompt.Message) (*Answer, error) {
	hits, err := s.searcher.Search(ctx, query, topK, s.collections)
	if err != nil {
		if errors.Is(err, retrieval.ErrUnavailable) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}

	assembled := prompt.Assemble(query, hits, history, prompt.DefaultMaxHistoryTurns)

	answer, err := s.generator.Generate(ctx, assembled)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrNotConfigured):
			s.logger.Warn("language model not configured, returning fallback answer")
			answer = notConfiguredAnswer
		default:
			s.logger.Error("language model call failed, returning fallback answer", zap.Error(err))
			answer = generationFailedAnswer
		}
	}

	return &Answer{
		Answer:    answer,
		Sources:   FormatSources(hits),
		Documents: hits,
	}, nil
}

// FormatSources renders one provenance line per hit, numbered in hit order.
func FormatSources(hits []retrieval.Hit) string {
	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = fmt.Sprintf("[DOC %d] id=%d score=%.3f source=%s",
			i+1, hit.ID, hit.Score, sourceLabel(hit))
	}
	return strings.Join(parts, "\n")
}

// sourceLabel picks the most specific provenance field available.
func sourceLabel(hit retrieval.Hit) string {
	for _, field := range []string{"source", "url", "filename"} {
		if value, ok := hit.Payload[field].(string); ok && value != "" {
			return value
		}
	}
	if recordID := hit.RecordID(); recordID != "" {
		return fmt.Sprintf("%s:%s", hit.Collection, recordID)
	}
	return hit.Collection
}
