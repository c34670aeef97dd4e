package vector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
	"github.com/hyperjump/ragprobe/internal/pointid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

const (
	payloadContent = "content"
	scrollPageSize = 256
)

var unsafeCollectionChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// QdrantOptions holds connection settings for QdrantStore.
type QdrantOptions struct {
	Host       string
	Port       int
	UseTLS     bool
	APIKey     string
	PoolSize   int
	Collection string
}

// QdrantStore keeps each namespace in its own collection named "{collection}-{namespace}".
// Points carry the chunk ID and the namespace in their payload; searches also filter
// on the namespace so a shared collection never leaks another model's hits.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrantStore connects to Qdrant. Collections are created lazily on first upsert.
func NewQdrantStore(qo QdrantOptions, opts ...Option) (*QdrantStore, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if qo.Collection == "" {
		return nil, fmt.Errorf("%w: empty qdrant collection name", errdefs.ErrConfig)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     qo.Host,
		Port:     qo.Port,
		APIKey:   qo.APIKey,
		UseTLS:   qo.UseTLS,
		PoolSize: uint(qo.PoolSize),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create qdrant client: %v", errdefs.ErrExternalService, err)
	}
	return &QdrantStore{
		client:     client,
		collection: qo.Collection,
		logger:     o.logger,
		ensured:    make(map[string]bool),
	}, nil
}

// CollectionName returns the collection holding namespace.
func CollectionName(base, namespace string) string {
	safe := strings.Trim(unsafeCollectionChars.ReplaceAllString(namespace, "_"), "_")
	if safe == "" {
		return base
	}
	return base + "-" + safe
}

func (q *QdrantStore) namespaceFilter(namespace string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(models.MetaEmbedding, namespace)},
	}
}

// exists reports whether the namespace collection exists, remembering positive answers.
func (q *QdrantStore) exists(ctx context.Context, name string) (bool, error) {
	q.mu.Lock()
	ok := q.ensured[name]
	q.mu.Unlock()
	if ok {
		return true, nil
	}
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check collection %s: %v", errdefs.ErrExternalService, name, err)
	}
	if exists {
		q.mu.Lock()
		q.ensured[name] = true
		q.mu.Unlock()
	}
	return exists, nil
}

func (q *QdrantStore) ensure(ctx context.Context, name string, dimensions int) error {
	exists, err := q.exists(ctx, name)
	if err != nil || exists {
		return err
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create collection %s: %v", errdefs.ErrExternalService, name, err)
	}
	if q.logger != nil {
		q.logger.Info("created qdrant collection", zap.String("collection", name), zap.Int("dimensions", dimensions))
	}
	q.mu.Lock()
	q.ensured[name] = true
	q.mu.Unlock()
	return nil
}

// Upsert writes points under deterministic UUIDs derived from namespace and chunk ID.
func (q *QdrantStore) Upsert(ctx context.Context, namespace string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	name := CollectionName(q.collection, namespace)
	if err := q.ensure(ctx, name, len(points[0].Vector)); err != nil {
		return err
	}
	qp := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qp[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointid.For(namespace, p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(pointPayload(namespace, p)),
		}
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         qp,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert failed: %v", errdefs.ErrExternalService, err)
	}
	return nil
}

// Search queries the namespace collection, filtered on the namespace payload field.
func (q *QdrantStore) Search(ctx context.Context, namespace string, query []float32, k int) ([]*Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	name := CollectionName(q.collection, namespace)
	exists, err := q.exists(ctx, name)
	if err != nil || !exists {
		return nil, err
	}
	result, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(query...),
		Filter:         q.namespaceFilter(namespace),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant query failed: %v", errdefs.ErrExternalService, err)
	}
	hits := make([]*Hit, 0, len(result))
	for _, sp := range result {
		hits = append(hits, hitFromPayload(sp.GetPayload(), float64(sp.GetScore())))
	}
	return hits, nil
}

// Contains fetches the derived point IDs and reports which chunk IDs came back.
func (q *QdrantStore) Contains(ctx context.Context, namespace string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = false
	}
	if len(ids) == 0 {
		return out, nil
	}
	name := CollectionName(q.collection, namespace)
	exists, err := q.exists(ctx, name)
	if err != nil || !exists {
		return out, err
	}
	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = qdrant.NewID(pointid.For(namespace, id))
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: name,
		Ids:            pids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant get failed: %v", errdefs.ErrExternalService, err)
	}
	for _, p := range points {
		if id := p.GetPayload()[models.MetaID].GetStringValue(); id != "" {
			out[id] = true
		}
	}
	return out, nil
}

// Get returns the point stored for chunk id.
func (q *QdrantStore) Get(ctx context.Context, namespace, id string) (*Hit, error) {
	name := CollectionName(q.collection, namespace)
	exists, err := q.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		points, err := q.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: name,
			Ids:            []*qdrant.PointId{qdrant.NewID(pointid.For(namespace, id))},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: qdrant get failed: %v", errdefs.ErrExternalService, err)
		}
		if len(points) > 0 {
			return hitFromPayload(points[0].GetPayload(), 0), nil
		}
	}
	return nil, fmt.Errorf("%w: point %q in %q", errdefs.ErrNotFound, id, namespace)
}

// IDs scrolls the namespace collection and returns the chunk IDs, sorted.
func (q *QdrantStore) IDs(ctx context.Context, namespace string) ([]string, error) {
	name := CollectionName(q.collection, namespace)
	exists, err := q.exists(ctx, name)
	if err != nil || !exists {
		return nil, err
	}
	var (
		ids    []string
		offset *qdrant.PointId
	)
	for {
		page, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Filter:         q.namespaceFilter(namespace),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize + 1)),
			WithPayload:    qdrant.NewWithPayloadInclude(models.MetaID),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: qdrant scroll failed: %v", errdefs.ErrExternalService, err)
		}
		// The offset point is returned again as the first element of the next page.
		more := len(page) > scrollPageSize
		if more {
			offset = page[scrollPageSize].GetId()
			page = page[:scrollPageSize]
		}
		for _, p := range page {
			if id := p.GetPayload()[models.MetaID].GetStringValue(); id != "" {
				ids = append(ids, id)
			}
		}
		if !more {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of points stored under namespace.
func (q *QdrantStore) Count(ctx context.Context, namespace string) (int, error) {
	name := CollectionName(q.collection, namespace)
	exists, err := q.exists(ctx, name)
	if err != nil || !exists {
		return 0, err
	}
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Filter:         q.namespaceFilter(namespace),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant count failed: %v", errdefs.ErrExternalService, err)
	}
	return int(n), nil
}

// Close closes the gRPC connections.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}

func pointPayload(namespace string, p Point) map[string]any {
	payload := make(map[string]any, len(p.Metadata)+3)
	for k, v := range p.Metadata {
		payload[k] = v
	}
	payload[models.MetaID] = p.ID
	payload[models.MetaEmbedding] = namespace
	payload[payloadContent] = p.Content
	return payload
}

// hitFromPayload converts a Qdrant payload into a Hit. A payload without an
// "id" string yields a hit with an empty ID.
func hitFromPayload(payload map[string]*qdrant.Value, score float64) *Hit {
	h := &Hit{Score: score, Metadata: make(map[string]string, len(payload))}
	for k, v := range payload {
		switch k {
		case payloadContent:
			h.Content = v.GetStringValue()
		default:
			if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
				h.Metadata[k] = s.StringValue
			}
		}
	}
	h.ID = h.Metadata[models.MetaID]
	return h
}
