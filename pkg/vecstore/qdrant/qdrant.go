// Package qdrant provides a Qdrant-backed vector store using the official
// gRPC client.
package qdrant

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/vecstore"
)

const (
	// DefaultPort is Qdrant's default gRPC port.
	DefaultPort = 6334

	// DefaultScrollLimit bounds how many records a single filter or
	// full-collection read returns.
	DefaultScrollLimit = 1000
)

// Store implements vecstore.Store against a Qdrant collection.
type Store struct {
	client      *qdrant.Client
	collection  string
	dimension   int
	scrollLimit uint32
	logger      *zap.Logger
}

// Config holds configuration for the Qdrant store.
type Config struct {
	// Collection is the Qdrant collection to bind to. It is created on
	// startup when missing.
	Collection string

	// Dimension is the embedding width used when creating the collection.
	Dimension int

	// DistanceMetric selects the similarity function: "cosine" (default),
	// "euclidean" or "dot".
	DistanceMetric string

	// Host is the Qdrant server host. Defaults to "localhost".
	Host string

	// Port is the Qdrant gRPC port. Defaults to DefaultPort.
	Port int

	// APIKey is an optional API key for Qdrant Cloud.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool

	// ScrollLimit caps filter and full-collection reads. Defaults to
	// DefaultScrollLimit.
	ScrollLimit int
}

var (
	_ vecstore.Store             = (*Store)(nil)
	_ vecstore.CollectionDropper = (*Store)(nil)
)

// NewStore connects to Qdrant and makes sure the collection exists.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	if c.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if c.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	scrollLimit := c.ScrollLimit
	if scrollLimit <= 0 {
		scrollLimit = DefaultScrollLimit
	}

	distance, err := distanceMetric(c.DistanceMetric)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client for %s:%d: %v", vecstore.ErrConnection, host, port, err)
	}

	ctx := context.Background()
	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection %q: %v", vecstore.ErrConnection, c.Collection, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimension),
				Distance: distance,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", c.Collection, err)
		}
	}

	logger.Info("connected to qdrant",
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("collection", c.Collection),
		zap.Int("dimension", c.Dimension),
	)

	return &Store{
		client:      client,
		collection:  c.Collection,
		dimension:   c.Dimension,
		scrollLimit: uint32(scrollLimit),
		logger:      logger,
	}, nil
}

func distanceMetric(name string) (qdrant.Distance, error) {
	switch strings.ToLower(name) {
	case "", "cosine":
		return qdrant.Distance_Cosine, nil
	case "euclidean", "l2":
		return qdrant.Distance_Euclid, nil
	case "dot":
		return qdrant.Distance_Dot, nil
	default:
		return qdrant.Distance_Cosine, fmt.Errorf("unsupported distance metric %q", name)
	}
}

// Collection returns the collection name this store is bound to.
func (s *Store) Collection() string {
	return s.collection
}

// Search finds the topK records most similar to the given vector.
func (s *Store) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]vecstore.Item, error) {
	if topK <= 0 {
		topK = 10
	}

	qf, err := toQdrantFilter(filter)
	if err != nil {
		return nil, err
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", s.collection, err)
	}

	items := make([]vecstore.Item, 0, len(points))
	for _, p := range points {
		items = append(items, vecstore.Item{
			ID:      pointID(p.GetId()),
			Vector:  pointVector(p.GetVectors()),
			Payload: fromQdrantPayload(p.GetPayload()),
			Score:   p.GetScore(),
		})
	}

	s.logger.Debug("queried qdrant",
		zap.String("collection", s.collection),
		zap.Int("results", len(items)),
	)

	return items, nil
}

// GetByID retrieves a single record, or nil when the id is unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*vecstore.Item, error) {
	items, err := s.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// GetByIDs retrieves the records for the given ids, omitting misses.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]vecstore.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points from %q: %w", s.collection, err)
	}

	items := make([]vecstore.Item, 0, len(points))
	for _, p := range points {
		items = append(items, retrievedItem(p))
	}
	return items, nil
}

// GetByFilter retrieves records whose payload satisfies the filter, up to
// the configured scroll limit.
func (s *Store) GetByFilter(ctx context.Context, filter map[string]any) ([]vecstore.Item, error) {
	qf, err := toQdrantFilter(filter)
	if err != nil {
		return nil, err
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         qf,
		Limit:          qdrant.PtrOf(s.scrollLimit),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling collection %q: %w", s.collection, err)
	}

	items := make([]vecstore.Item, 0, len(points))
	for _, p := range points {
		items = append(items, retrievedItem(p))
	}
	return items, nil
}

// GetAll retrieves every record in the collection, up to the configured
// scroll limit.
func (s *Store) GetAll(ctx context.Context) ([]vecstore.Item, error) {
	return s.GetByFilter(ctx, nil)
}

// Count returns the exact number of records satisfying the filter.
func (s *Store) Count(ctx context.Context, filter map[string]any) (int64, error) {
	qf, err := toQdrantFilter(filter)
	if err != nil {
		return 0, err
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %q: %w", s.collection, err)
	}
	return int64(n), nil
}

// Add stores records. Qdrant upserts points natively, so records reusing
// an existing id replace the stored record.
func (s *Store) Add(ctx context.Context, items []vecstore.Item) error {
	return s.Upsert(ctx, items)
}

// Update stores item under the given id, replacing any existing record.
func (s *Store) Update(ctx context.Context, id string, item vecstore.Item) error {
	item.ID = id
	return s.Upsert(ctx, []vecstore.Item{item})
}

// Upsert inserts or replaces records by id.
func (s *Store) Upsert(ctx context.Context, items []vecstore.Item) error {
	if len(items) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("item id is required")
		}
		if len(item.Vector) != s.dimension {
			return fmt.Errorf("item %s: embedding has %d dimensions, collection expects %d", item.ID, len(item.Vector), s.dimension)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(item.ID),
			Vectors: qdrant.NewVectors(item.Vector...),
			Payload: toQdrantPayload(item.Payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upserting into %q: %w", s.collection, err)
	}

	s.logger.Debug("upserted points into qdrant",
		zap.String("collection", s.collection),
		zap.Int("count", len(points)),
	)

	return nil
}

// Delete removes records by id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("deleting from %q: %w", s.collection, err)
	}

	s.logger.Debug("deleted points from qdrant",
		zap.String("collection", s.collection),
		zap.Int("count", len(ids)),
	)

	return nil
}

// EnsurePayloadIndexes creates keyword payload indexes for the given
// fields. Failures are logged and skipped so startup never hinges on
// index creation.
func (s *Store) EnsurePayloadIndexes(ctx context.Context, fields []string) error {
	for _, field := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			s.logger.Warn("payload index creation failed",
				zap.String("collection", s.collection),
				zap.String("field", field),
				zap.Error(err),
			)
		}
	}
	return nil
}

// DropCollection deletes the backing collection and everything in it.
func (s *Store) DropCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("deleting collection %q: %w", s.collection, err)
	}
	return nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func retrievedItem(p *qdrant.RetrievedPoint) vecstore.Item {
	return vecstore.Item{
		ID:      pointID(p.GetId()),
		Vector:  pointVector(p.GetVectors()),
		Payload: fromQdrantPayload(p.GetPayload()),
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func pointVector(v *qdrant.VectorsOutput) []float32 {
	if v == nil {
		return nil
	}
	vec := v.GetVector()
	if vec == nil {
		return nil
	}
	return vec.GetData()
}

// toQdrantFilter converts a flat equality filter into Qdrant match
// conditions. Value types with no match condition fail closed.
func toQdrantFilter(flat map[string]any) (*qdrant.Filter, error) {
	if len(flat) == 0 {
		return nil, nil
	}

	conditions := make([]*qdrant.Condition, 0, len(flat))
	for _, field := range vecstore.SortedFields(flat) {
		switch v := flat[field].(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(field, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(field, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(field, v))
		case float64:
			if v != math.Trunc(v) {
				return nil, &vecstore.UnsupportedFilterError{Reason: fmt.Sprintf("field %q: fractional values cannot be matched", field)}
			}
			conditions = append(conditions, qdrant.NewMatchInt(field, int64(v)))
		default:
			return nil, &vecstore.UnsupportedFilterError{Reason: fmt.Sprintf("field %q has unfilterable type %T", field, flat[field])}
		}
	}

	return &qdrant.Filter{Must: conditions}, nil
}

func toQdrantPayload(payload map[string]any) map[string]*qdrant.Value {
	if len(payload) == 0 {
		return nil
	}
	fields := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		fields[k] = toQdrantValue(v)
	}
	return fields
}

func toQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int32:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = toQdrantValue(s)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	case []any:
		values := make([]*qdrant.Value, len(val))
		for i, item := range val {
			values[i] = toQdrantValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	case map[string]any:
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: toQdrantPayload(val)}}}
	default:
		// Fall back to the string form rather than dropping the field.
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func fromQdrantPayload(fields map[string]*qdrant.Value) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = fromQdrantValue(v)
	}
	return payload
}

func fromQdrantValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			values = append(values, fromQdrantValue(item))
		}
		return values
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}
