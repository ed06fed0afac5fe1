package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCClient implements the Client interface using Qdrant's official Go client.
//
// Calls are bounded by the configured request timeout but never retried here:
// ingestion and retrieval treat a failed call as a degraded result, and
// callers needing resilience wrap the client externally.
type GRPCClient struct {
	client *qdrant.Client
	config *ClientConfig
	logger *zap.Logger
}

// ClientConfig configures the Qdrant gRPC client.
type ClientConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// UseTLS enables TLS encryption for gRPC connection.
	// Default: false (for local development)
	UseTLS bool

	// APIKey is the optional API key for authentication.
	// Leave empty for local development.
	APIKey string

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB (to handle large documents)
	MaxMessageSize int

	// DialTimeout is the timeout for establishing connection.
	// Default: 5 seconds
	DialTimeout time.Duration

	// RequestTimeout is the default timeout for individual requests.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// Distance is the distance metric for new collections.
	// Default: Cosine
	Distance qdrant.Distance
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           "localhost",
		Port:           6334,
		UseTLS:         false,
		MaxMessageSize: 50 * 1024 * 1024, // 50MB
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		Distance:       qdrant.Distance_Cosine,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	defaults := DefaultClientConfig()

	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.Distance == 0 {
		c.Distance = defaults.Distance
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size: %d (must be > 0)", c.MaxMessageSize)
	}
	return nil
}

// NewGRPCClient creates a new Qdrant gRPC client and verifies connectivity.
func NewGRPCClient(config *ClientConfig, logger *zap.Logger) (*GRPCClient, error) {
	if config == nil {
		config = DefaultClientConfig()
	}

	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}

	// For non-TLS connections, explicitly set insecure credentials
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	grpcClient := &GRPCClient{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	logger.Info("connecting to qdrant",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)

	if err := grpcClient.Health(ctx); err != nil {
		_ = client.Close()
		logger.Error("qdrant health check failed",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
			zap.Error(err),
		)
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	logger.Info("qdrant connection established",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)

	return grpcClient, nil
}

// Health performs a health check on the Qdrant connection.
func (c *GRPCClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	_, err := c.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CreateCollection creates a new collection with the specified vector size
// and the configured distance metric.
func (c *GRPCClient) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: c.config.Distance,
		}),
	})
}

// DeleteCollection deletes a collection and all its points.
func (c *GRPCClient) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return c.client.DeleteCollection(ctx, name)
}

// CollectionExists checks if a collection exists.
func (c *GRPCClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	info, err := c.GetCollectionInfo(ctx, name)
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return info != nil, nil
}

// GetCollectionInfo returns the collection's configured vector size and
// point count.
func (c *GRPCClient) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	info, err := c.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	return &CollectionInfo{
		Name:       name,
		VectorSize: info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(),
		PointCount: info.GetPointsCount(),
	}, nil
}

// Upsert inserts or overwrites points in a collection, keyed by numeric id.
func (c *GRPCClient) Upsert(ctx context.Context, collection string, points []*Point) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		qdrantPoints[i] = convertToQdrantPoint(point)
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qdrantPoints,
	})
	return err
}

// Search performs similarity search in a collection.
func (c *GRPCClient) Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	scoredPoints := make([]*ScoredPoint, len(results))
	for i, result := range results {
		scoredPoints[i] = convertFromQdrantScoredPoint(result)
	}
	return scoredPoints, nil
}

// Close closes the client connection.
func (c *GRPCClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Helper conversion functions

func convertToQdrantPoint(p *Point) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value)
	for k, v := range p.Payload {
		payload[k] = convertToQdrantValue(v)
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}
}

func convertToQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		// Fallback to string representation
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func convertFromQdrantScoredPoint(p *qdrant.ScoredPoint) *ScoredPoint {
	return &ScoredPoint{
		Point: Point{
			ID:      p.GetId().GetNum(),
			Payload: extractPayload(p.GetPayload()),
		},
		Score: p.GetScore(),
	}
}

func extractPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}

	result := make(map[string]interface{})
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

// Ensure GRPCClient implements Client interface
var _ Client = (*GRPCClient)(nil)
