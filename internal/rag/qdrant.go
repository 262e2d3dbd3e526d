package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Payload field names used in Qdrant points.
const (
	fieldText        = "text"
	fieldDocumentID  = "document_id"
	fieldDepartment  = "department"
	fieldOrigin      = "origin"
	fieldIngestedAt  = "ingested_at"
	fieldDecayWeight = "decay_weight"
)

// scrollPageSize is the page size used when scanning a full collection.
const scrollPageSize = 1024

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// VectorSize is the dimensionality of embeddings stored in every
	// collection managed by this store.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. Collections
// use the Euclid metric, so the score Qdrant returns for a query is the raw
// L2 distance (lower is closer) — exactly what the hybrid scorer consumes.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a QdrantStore and verifies the connection.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// EnsureCollection creates the named collection if it does not already exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection %q: %w", name, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}

	return nil
}

// requireCollection maps a missing collection to ErrCollectionMissing so the
// caller sees a loud, typed failure rather than an empty result set.
func (s *QdrantStore) requireCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection %q: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("qdrant: %q: %w", name, ErrCollectionMissing)
	}
	return nil
}

// Insert writes a chunk into its collection.
func (s *QdrantStore) Insert(ctx context.Context, chunk Chunk) error {
	if uint64(len(chunk.Embedding)) != s.cfg.VectorSize {
		return fmt.Errorf("qdrant: got %d dims, store configured for %d: %w",
			len(chunk.Embedding), s.cfg.VectorSize, ErrDimensionMismatch)
	}
	if err := s.requireCollection(ctx, chunk.Meta.Collection); err != nil {
		return err
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(chunk.ID),
		Vectors: qdrant.NewVectors(chunk.Embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			fieldText:        chunk.Text,
			fieldDocumentID:  chunk.Meta.DocumentID,
			fieldDepartment:  chunk.Meta.Department,
			fieldOrigin:      string(chunk.Meta.Origin),
			fieldIngestedAt:  chunk.Meta.IngestedAt.Unix(),
			fieldDecayWeight: chunk.Meta.DecayWeight,
		}),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: chunk.Meta.Collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", chunk.Meta.Collection, err)
	}
	return nil
}

// Nearest performs an L2 nearest-neighbour query and returns up to limit
// results ordered by ascending distance.
func (s *QdrantStore) Nearest(ctx context.Context, collection string, embedding []float32, limit int) ([]Neighbor, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}

	lim := uint64(limit)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search in %q failed: %w", collection, err)
	}

	neighbors := make([]Neighbor, 0, len(results))
	for _, r := range results {
		neighbors = append(neighbors, Neighbor{
			Chunk:    chunkFromPayload(r.Id.GetUuid(), collection, r.Payload),
			Distance: float64(r.Score),
		})
	}
	return neighbors, nil
}

// Scan visits every chunk in the collection via paged scrolls, ordered by
// point ID, until fn returns false.
func (s *QdrantStore) Scan(ctx context.Context, collection string, fn func(Chunk) bool) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}

	var offset *qdrant.PointId
	limit := uint32(scrollPageSize)
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant: scroll in %q failed: %w", collection, err)
		}

		for _, p := range points {
			// Offset is inclusive: the first point of a follow-up page is
			// the last point of the previous one.
			if offset != nil && p.Id.GetUuid() == offset.GetUuid() {
				continue
			}
			if !fn(chunkFromPayload(p.Id.GetUuid(), collection, p.Payload)) {
				return nil
			}
		}

		if len(points) < scrollPageSize {
			return nil
		}
		offset = points[len(points)-1].Id
	}
}

// UpdateDecayWeight overwrites the decay_weight payload field of one chunk.
func (s *QdrantStore) UpdateDecayWeight(ctx context.Context, collection, id string, weight float64) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}

	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: collection,
		Payload:        qdrant.NewValueMap(map[string]any{fieldDecayWeight: weight}),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: decay update for %q/%s failed: %w", collection, id, err)
	}
	return nil
}

// DeleteByID removes a single chunk from the collection.
func (s *QdrantStore) DeleteByID(ctx context.Context, collection, id string) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %q/%s failed: %w", collection, id, err)
	}
	return nil
}

// DeleteByDocument removes every chunk of the given source document and
// returns how many were removed.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, collection, documentID string) (int, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return 0, err
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(fieldDocumentID, documentID)},
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count for document %s in %q failed: %w", documentID, collection, err)
	}
	if count == 0 {
		return 0, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete document %s in %q failed: %w", documentID, collection, err)
	}
	return int(count), nil
}

// ClearCollection drops and recreates the collection, returning the number
// of chunks removed. Recreating is cheaper than a filtered full delete and
// leaves the collection queryable, as the interface requires.
func (s *QdrantStore) ClearCollection(ctx context.Context, name string) (int, error) {
	if err := s.requireCollection(ctx, name); err != nil {
		return 0, err
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count in %q failed: %w", name, err)
	}

	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return 0, fmt.Errorf("qdrant: drop collection %q failed: %w", name, err)
	}
	if err := s.EnsureCollection(ctx, name); err != nil {
		return 0, err
	}
	return int(count), nil
}

// Count returns the exact number of chunks in the collection.
func (s *QdrantStore) Count(ctx context.Context, name string) (int, error) {
	if err := s.requireCollection(ctx, name); err != nil {
		return 0, err
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count in %q failed: %w", name, err)
	}
	return int(count), nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Ping checks Qdrant reachability for readiness probes.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Name returns the dependency label for readiness checks.
func (s *QdrantStore) Name() string { return "qdrant" }

// chunkFromPayload rebuilds a Chunk from a Qdrant point payload. The
// embedding is not round-tripped — readers of Nearest/Scan consume text and
// metadata, never the stored vector.
func chunkFromPayload(id, collection string, payload map[string]*qdrant.Value) Chunk {
	c := Chunk{
		ID:   id,
		Meta: Metadata{Collection: collection, DecayWeight: 1.0},
	}
	if payload == nil {
		return c
	}
	if v, ok := payload[fieldText]; ok {
		c.Text = v.GetStringValue()
	}
	if v, ok := payload[fieldDocumentID]; ok {
		c.Meta.DocumentID = v.GetStringValue()
	}
	if v, ok := payload[fieldDepartment]; ok {
		c.Meta.Department = v.GetStringValue()
	}
	if v, ok := payload[fieldOrigin]; ok {
		c.Meta.Origin = Origin(v.GetStringValue())
	}
	if v, ok := payload[fieldIngestedAt]; ok {
		c.Meta.IngestedAt = time.Unix(v.GetIntegerValue(), 0)
	}
	if v, ok := payload[fieldDecayWeight]; ok {
		c.Meta.DecayWeight = v.GetDoubleValue()
	}
	return c
}
