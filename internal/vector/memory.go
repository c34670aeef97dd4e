package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/pkg/utils"
	"go.uber.org/zap"
)

const memoryMagic uint32 = 0x52505631 // "RPV1"

// Option configures a store.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger for the store.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// MemoryStore is an in-memory vector store using brute-force inner product search.
// Each namespace has its own dimension, fixed by the first point added to it.
type MemoryStore struct {
	mu         sync.RWMutex
	saveMu     sync.Mutex // serializes Save; taken before mu
	namespaces map[string]*memoryNamespace
	logger     *zap.Logger
}

type memoryNamespace struct {
	dimensions int
	index      map[string]int
	points     []Point
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		namespaces: make(map[string]*memoryNamespace),
		logger:     o.logger,
	}
}

// Upsert adds points to namespace, overwriting points that share an ID.
func (m *MemoryStore) Upsert(ctx context.Context, namespace string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.namespaces[namespace]
	if ns == nil {
		ns = &memoryNamespace{dimensions: len(points[0].Vector), index: make(map[string]int)}
	}
	for _, p := range points {
		if len(p.Vector) == 0 || len(p.Vector) != ns.dimensions {
			return fmt.Errorf("%w: vector dimension mismatch: got %d, expected %d", errdefs.ErrInvalidInput, len(p.Vector), ns.dimensions)
		}
	}
	for _, p := range points {
		stored := Point{
			ID:       p.ID,
			Vector:   append([]float32(nil), p.Vector...),
			Content:  p.Content,
			Metadata: copyMetadata(p.Metadata),
		}
		if i, ok := ns.index[p.ID]; ok {
			ns.points[i] = stored
			continue
		}
		ns.index[p.ID] = len(ns.points)
		ns.points = append(ns.points, stored)
	}
	m.namespaces[namespace] = ns
	return nil
}

// Search returns the top-k points by inner product (assumes normalized vectors = cosine similarity).
// An unknown namespace yields no hits.
func (m *MemoryStore) Search(ctx context.Context, namespace string, query []float32, k int) ([]*Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := m.namespaces[namespace]
	if ns == nil || k <= 0 || len(ns.points) == 0 {
		return nil, nil
	}
	if len(query) != ns.dimensions {
		return nil, fmt.Errorf("%w: query dimension mismatch: got %d, expected %d", errdefs.ErrInvalidInput, len(query), ns.dimensions)
	}
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, len(ns.points))
	for i := range ns.points {
		scores[i] = scored{i: i, score: dot(query, ns.points[i].Vector)}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
	if k > len(scores) {
		k = len(scores)
	}
	hits := make([]*Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = ns.hit(scores[i].i, scores[i].score)
	}
	return hits, nil
}

// Contains reports which ids are stored in namespace.
func (m *MemoryStore) Contains(ctx context.Context, namespace string, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	ns := m.namespaces[namespace]
	for _, id := range ids {
		if ns == nil {
			out[id] = false
			continue
		}
		_, out[id] = ns.index[id]
	}
	return out, nil
}

// Get returns the point stored under id.
func (m *MemoryStore) Get(ctx context.Context, namespace, id string) (*Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ns := m.namespaces[namespace]; ns != nil {
		if i, ok := ns.index[id]; ok {
			return ns.hit(i, 0), nil
		}
	}
	return nil, fmt.Errorf("%w: point %q in %q", errdefs.ErrNotFound, id, namespace)
}

// IDs returns the sorted point IDs in namespace.
func (m *MemoryStore) IDs(ctx context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := m.namespaces[namespace]
	if ns == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(ns.points))
	for _, p := range ns.points {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of points in namespace.
func (m *MemoryStore) Count(ctx context.Context, namespace string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ns := m.namespaces[namespace]; ns != nil {
		return len(ns.points), nil
	}
	return 0, nil
}

// Namespaces returns the namespaces holding at least one point, sorted.
func (m *MemoryStore) Namespaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.namespaces))
	for name, ns := range m.namespaces {
		if len(ns.points) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

func (ns *memoryNamespace) hit(i int, score float64) *Hit {
	p := ns.points[i]
	return &Hit{ID: p.ID, Score: score, Content: p.Content, Metadata: copyMetadata(p.Metadata)}
}

func copyMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Save persists the store to path. Directory is created if needed. Format: magic (4),
// namespace count (4), then per namespace: name, dimension (4), n (4), and per point:
// id, content, metadata count (4) with key/value pairs, vector (dimension*4 bytes).
// Strings are written as length (4) followed by bytes.
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	m.mu.RLock()
	defer m.mu.RUnlock()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	tmp := f.Name()
	w := bufio.NewWriter(f)
	if err := m.encode(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to flush index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("vector index saved", zap.String("path", path), zap.Int("namespaces", len(m.namespaces)))
	}
	return nil
}

func (m *MemoryStore) encode(w io.Writer) error {
	names := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := writeUint32(w, memoryMagic); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		ns := m.namespaces[name]
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(ns.dimensions)); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(ns.points))); err != nil {
			return err
		}
		for _, p := range ns.points {
			if err := writeString(w, p.ID); err != nil {
				return err
			}
			if err := writeString(w, p.Content); err != nil {
				return err
			}
			keys := make([]string, 0, len(p.Metadata))
			for k := range p.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if err := writeUint32(w, uint32(len(keys))); err != nil {
				return err
			}
			for _, k := range keys {
				if err := writeString(w, k); err != nil {
					return err
				}
				if err := writeString(w, p.Metadata[k]); err != nil {
					return err
				}
			}
			if _, err := w.Write(utils.Float32sToBytes(p.Vector)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads the store from path and replaces the in-memory contents.
// If the file does not exist, no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()
	namespaces, err := decodeMemory(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("failed to read index %s: %w", path, err)
	}
	m.mu.Lock()
	m.namespaces = namespaces
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Debug("vector index loaded", zap.String("path", path), zap.Int("namespaces", len(namespaces)))
	}
	return nil
}

func decodeMemory(r io.Reader) (map[string]*memoryNamespace, error) {
	magic, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if magic != memoryMagic {
		return nil, errors.New("not a vector index file")
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*memoryNamespace, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		dim, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		ns := &memoryNamespace{dimensions: int(dim), index: make(map[string]int, n), points: make([]Point, 0, n)}
		buf := make([]byte, int(dim)*4)
		for j := uint32(0); j < n; j++ {
			var p Point
			if p.ID, err = readString(r); err != nil {
				return nil, err
			}
			if p.Content, err = readString(r); err != nil {
				return nil, err
			}
			metaCount, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			if metaCount > 0 {
				p.Metadata = make(map[string]string, metaCount)
			}
			for k := uint32(0); k < metaCount; k++ {
				key, err := readString(r)
				if err != nil {
					return nil, err
				}
				val, err := readString(r)
				if err != nil {
					return nil, err
				}
				p.Metadata[key] = val
			}
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			p.Vector = utils.BytesToFloat32s(buf)
			ns.index[p.ID] = len(ns.points)
			ns.points = append(ns.points, p)
		}
		out[name] = ns
	}
	return out, nil
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// dot is the inner product; for unit vectors it equals cosine similarity.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i, v := range a {
		sum += float64(v) * float64(b[i])
	}
	return sum
}
