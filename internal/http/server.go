// Package http provides the HTTP API for knowledged.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/index"
	"github.com/fyrsmithlabs/knowledged/internal/ingest"
	"github.com/fyrsmithlabs/knowledged/internal/prompt"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/recordstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Collections is the ordered list of logical collections the
	// maintenance endpoint recreates.
	Collections []string

	// DefaultTopK is the per-collection result budget used when a query
	// omits top_k.
	DefaultTopK int
}

// Dimensioner reports the live embedding dimension for maintenance actions.
type Dimensioner interface {
	Dimension() int
}

// Querier answers knowledge base queries.
type Querier interface {
	Query(ctx context.Context, query string, topK int, history []prompt.Message) (*rag.Answer, error)
}

// Reindexer recreates vector indexes. Implemented by *index.Manager.
type Reindexer interface {
	RecreateAll(ctx context.Context, collections []string, dimension int) map[string]bool
}

// Server provides HTTP endpoints for knowledged.
type Server struct {
	echo     *echo.Echo
	logger   *zap.Logger
	config   *Config
	metrics  *Metrics
	querier  Querier
	reindex  Reindexer
	embedder Dimensioner
	ingestor *ingest.Ingestor
	records  *recordstore.Store
}

// NewServer creates the HTTP server. reindex may be nil when no vector
// store is configured; the maintenance endpoint then reports 503.
func NewServer(cfg *Config, querier Querier, reindex Reindexer, embedder Dimensioner, ingestor *ingest.Ingestor, records *recordstore.Store, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8090}
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 4
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		querier:  querier,
		reindex:  reindex,
		embedder: embedder,
		ingestor: ingestor,
		records:  records,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}),
	))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/rag/query", s.handleQuery)
	v1.POST("/admin/reindex", s.handleReindex)

	v1.POST("/documents", s.handleCreateDocument)
	v1.GET("/documents", s.handleListDocuments)
	v1.POST("/chat/messages", s.handleCreateChatMessage)
	v1.GET("/chat/messages", s.handleListChatMessages)
	v1.POST("/employees", s.handleCreateEmployee)
	v1.GET("/employees", s.handleListEmployees)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// QueryRequest is the request body for POST /api/v1/rag/query.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}
	if topK > 20 {
		topK = 20
	}

	history := s.recentHistory(c.Request().Context())

	answer, err := s.querier.Query(c.Request().Context(), req.Query, topK, history)
	if err != nil {
		if errors.Is(err, rag.ErrUnavailable) {
			s.metrics.RecordQuery("unavailable")
			return echo.NewHTTPError(http.StatusServiceUnavailable, "no knowledge base configured")
		}
		s.metrics.RecordQuery("error")
		s.logger.Error("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}

	s.metrics.RecordQuery("ok")
	return c.JSON(http.StatusOK, answer)
}

// recentHistory loads the conversation turns included in the prompt.
// History is an enhancement: a record store read failure degrades to an
// empty history, never a failed query.
func (s *Server) recentHistory(ctx context.Context) []prompt.Message {
	msgs, err := s.records.ListRecentMessages(ctx, prompt.DefaultMaxHistoryTurns)
	if err != nil {
		s.logger.Warn("failed to load conversation history", zap.Error(err))
		return nil
	}
	history := make([]prompt.Message, len(msgs))
	for i, msg := range msgs {
		history[i] = prompt.Message{Role: msg.Role, Content: msg.Content}
	}
	return history
}

// ReindexResponse is the response body for POST /api/v1/admin/reindex.
type ReindexResponse struct {
	// Results maps collection name to recreation success.
	Results map[string]bool `json:"results"`

	// Dimension is the live embedding dimension indexes were created with.
	Dimension int `json:"dimension"`
}

// handleReindex destructively recreates every configured collection's
// vector index at the live embedding dimension. This is the operator
// recovery path for dimension drift; it deletes all indexed points.
func (s *Server) handleReindex(c echo.Context) error {
	if s.reindex == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no vector store configured")
	}

	dimension := s.embedder.Dimension()
	results := s.reindex.RecreateAll(c.Request().Context(), s.config.Collections, dimension)

	s.logger.Info("reindex completed",
		zap.Int("dimension", dimension),
		zap.Any("results", results),
	)
	return c.JSON(http.StatusOK, ReindexResponse{Results: results, Dimension: dimension})
}

// CreateDocumentRequest is the request body for POST /api/v1/documents.
type CreateDocumentRequest struct {
	Title     string `json:"title"`
	Category  string `json:"category"`
	Filename  string `json:"filename"`
	CloudLink string `json:"cloud_link"`
}

func (s *Server) handleCreateDocument(c echo.Context) error {
	var req CreateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title field is required")
	}

	doc, err := s.records.InsertDocument(c.Request().Context(), recordstore.Document{
		Title:     req.Title,
		Category:  req.Category,
		Filename:  req.Filename,
		CloudLink: req.CloudLink,
	})
	if err != nil {
		s.logger.Error("failed to insert document", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store document")
	}

	s.ingestRecord(c.Request().Context(), recordstore.CollectionDocuments, doc.ID, doc.Title)
	return c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	limit := queryLimit(c, 5)
	docs, err := s.records.ListRecentDocuments(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("failed to list documents", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list documents")
	}
	return c.JSON(http.StatusOK, docs)
}

// CreateChatMessageRequest is the request body for POST /api/v1/chat/messages.
type CreateChatMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleCreateChatMessage(c echo.Context) error {
	var req CreateChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	msg, err := s.records.InsertChatMessage(c.Request().Context(), recordstore.ChatMessage{
		Role:    req.Role,
		Content: req.Content,
	})
	if err != nil {
		s.logger.Error("failed to insert chat message", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store message")
	}

	s.ingestRecord(c.Request().Context(), recordstore.CollectionChatMessages, msg.ID, msg.Content)
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleListChatMessages(c echo.Context) error {
	limit := queryLimit(c, 10)
	msgs, err := s.records.ListRecentMessages(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("failed to list chat messages", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}
	return c.JSON(http.StatusOK, msgs)
}

// CreateEmployeeRequest is the request body for POST /api/v1/employees.
type CreateEmployeeRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Position string `json:"position"`
}

func (s *Server) handleCreateEmployee(c echo.Context) error {
	var req CreateEmployeeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.FullName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "full_name field is required")
	}

	emp, err := s.records.InsertEmployee(c.Request().Context(), recordstore.Employee{
		FullName: req.FullName,
		Email:    req.Email,
		Position: req.Position,
	})
	if err != nil {
		s.logger.Error("failed to insert employee", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store employee")
	}

	text := strings.TrimSpace(strings.Join([]string{emp.FullName, emp.Position, emp.Email}, " "))
	s.ingestRecord(c.Request().Context(), recordstore.CollectionEmployees, emp.ID, text)
	return c.JSON(http.StatusCreated, emp)
}

func (s *Server) handleListEmployees(c echo.Context) error {
	emps, err := s.records.ListEmployees(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to list employees", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list employees")
	}
	return c.JSON(http.StatusOK, emps)
}

// ingestRecord runs the best-effort vector ingestion for a record that was
// already stored. The write path never fails on an ingestion failure.
func (s *Server) ingestRecord(ctx context.Context, collection, recordID, text string) {
	if s.ingestor == nil {
		return
	}
	ok := s.ingestor.Ingest(ctx, collection, recordID, text)
	s.metrics.RecordIngest(collection, ok)
}

func queryLimit(c echo.Context, fallback int) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 100 {
		return fallback
	}
	return limit
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

var _ Reindexer = (*index.Manager)(nil)
