package memory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointIDField stashes the original int64 fragment id in the payload, since
// Qdrant point ids must be a UUID or an unsigned integer and we derive a
// deterministic UUID from the fragment id to avoid a second id space.
const pointIDField = "_fragment_id"

// VectorResult is a single nearest-neighbor hit: the fragment id and its
// cosine-distance rank score. Payloads are discarded by design — retrieval of
// fragment content always goes back through the relational store.
type VectorResult struct {
	ID    int64
	Score float64
}

// VectorStore is the Vector Store Adapter contract.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, points []VectorPoint) error
	Search(ctx context.Context, vector []float32, limit int, filter map[string]string) ([]VectorResult, error)
	Delete(ctx context.Context, id int64) error
	Dimension() int
}

// VectorPoint is one upsert unit: a fragment id, its embedding, and a flat
// string payload (importance/confidence/tags/created_at/source are encoded
// as strings so they survive Qdrant's payload value map uniformly).
type VectorPoint struct {
	ID      int64
	Vector  []float32
	Payload map[string]string
}

// QdrantVectorStore is a qdrant-backed VectorStore, adapted line-for-line in
// spirit from the teacher's qdrantVector: same UUIDv5 point-id derivation and
// payload-stashing trick, generalized from string ids to the fragment's int64
// id space.
type QdrantVectorStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantVectorStore connects to Qdrant over gRPC (default port 6334) and
// ensures the configured collection exists with cosine distance, per
// spec.md §4.1's "ensure_collection creates the collection on first use".
func NewQdrantVectorStore(ctx context.Context, dsn, collection string, dimensions int) (*QdrantVectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrValidation)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse vector store DSN: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in vector store DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vector store client: %w", err)
	}
	qv := &QdrantVectorStore{client: client, collection: collection, dimension: dimensions}
	if dimensions > 0 {
		if err := qv.EnsureCollection(ctx, dimensions); err != nil {
			client.Close()
			return nil, err
		}
	}
	return qv, nil
}

// EnsureCollection is idempotent: a pre-existing collection is accepted as
// is. Its vector size is not compared with dim, so a dimension mismatch
// against an existing collection is not reported here.
func (q *QdrantVectorStore) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: vector store requires dimensions > 0", ErrValidation)
	}
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection exists: %v", ErrStoreUnavailable, err)
	}
	if exists {
		q.dimension = dim
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", ErrStoreUnavailable, err)
	}
	q.dimension = dim
	return nil
}

func fragmentPointID(id int64) *qdrant.PointId {
	name := strconv.FormatInt(id, 10)
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
	return qdrant.NewIDUUID(u.String())
}

// Upsert writes all points as a single call, per spec.md §4.1 step 4's "single
// call" requirement (so the hybrid manager's rollback covers the whole batch
// atomically from the caller's perspective).
func (q *QdrantVectorStore) Upsert(ctx context.Context, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload[pointIDField] = strconv.FormatInt(p.ID, 10)
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      fragmentPointID(p.ID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Search returns the top-`limit` nearest neighbors by cosine distance. Filter
// is advisory: when supplied it is pushed down as an exact-match AND filter,
// but callers must not assume backend enforcement (spec.md §4.3).
func (q *QdrantVectorStore) Search(ctx context.Context, vector []float32, limit int, filter map[string]string) ([]VectorResult, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qfilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		qfilter = &qdrant.Filter{Must: must}
	}

	lim := uint64(limit)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &lim,
		Filter:         qfilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStoreUnavailable, err)
	}

	out := make([]VectorResult, 0, len(hits))
	for _, hit := range hits {
		var id int64
		if hit.Payload != nil {
			if v, ok := hit.Payload[pointIDField]; ok {
				id, _ = strconv.ParseInt(strings.TrimSpace(v.GetStringValue()), 10, 64)
			}
		}
		if id == 0 {
			continue // payload missing the fragment id stash; nothing to materialize
		}
		out = append(out, VectorResult{ID: id, Score: float64(hit.Score)})
	}
	return out, nil
}

// Delete is best-effort from the hybrid manager's point of view; this method
// itself still reports the underlying error so callers can decide policy.
func (q *QdrantVectorStore) Delete(ctx context.Context, id int64) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(fragmentPointID(id)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete point %d: %v", ErrStoreUnavailable, id, err)
	}
	return nil
}

func (q *QdrantVectorStore) Dimension() int { return q.dimension }

func (q *QdrantVectorStore) Close() error { return q.client.Close() }
