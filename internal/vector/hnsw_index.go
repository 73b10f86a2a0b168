// Package vector implements the approximate-nearest-neighbour index (C6)
// over github.com/coder/hnsw, using lazy tombstone deletion, cosine
// normalisation, and atomic temp-file-plus-rename persistence. Snapshots
// are written as map.tsv (label -> chunk id) plus vectors.bin (raw float32
// vectors); the graph is rebuilt deterministically from the vectors on load
// rather than deserialised as graph topology, so a reload never depends on
// the HNSW library's internal node/level representation being stable
// across versions.
package vector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
)

const (
	mapFileName = "map.tsv"
	vecFileName = "vectors.bin"
)

// DimensionMismatchError reports a vector whose length disagrees with the
// index's configured dimensionality.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Config controls graph construction.
type Config struct {
	Dimensions  int
	M           int
	EfSearch    int
	FetchFactor int
}

func (c Config) withDefaults() Config {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfSearch == 0 {
		c.EfSearch = 20
	}
	if c.FetchFactor == 0 {
		c.FetchFactor = 4
	}
	return c
}

// Index is the HNSW-backed vector index. All similarity is cosine; vectors
// are normalised on insert and on query so graph.Distance yields values in
// [0,2] and Score = 1 - distance/2 falls in [0,1].
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	cfg    Config
	idMap  map[string]uint64
	keyMap map[uint64]string
	vecMap map[uint64][]float32
	next   uint64
	closed bool
}

// Caps declares this index's pushdownable filter shapes: none. Vector
// search has no native predicate pushdown, so every clause is left to the
// orchestrator's post-filter pass.
func Caps() chunkmodel.IndexCaps {
	return chunkmodel.IndexCaps{}
}

// New builds an empty in-memory index.
func New(cfg Config) *Index {
	cfg = cfg.withDefaults()
	g := newGraph(cfg)
	return &Index{
		graph:  g,
		cfg:    cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		vecMap: make(map[uint64][]float32),
	}
}

func newGraph(cfg Config) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Upsert inserts or replaces vectors by chunk id. Replacement uses lazy
// tombstoning: the old graph node is orphaned (never deleted) rather than
// removed, since coder/hnsw can corrupt its level structure when the last
// node at a level is deleted.
func (idx *Index) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != idx.cfg.Dimensions {
			return DimensionMismatchError{Expected: idx.cfg.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if oldKey, exists := idx.idMap[id]; exists {
			delete(idx.keyMap, oldKey)
			delete(idx.vecMap, oldKey)
			delete(idx.idMap, id)
		}

		key := idx.next
		idx.next++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalize(vec)

		idx.graph.Add(hnsw.MakeNode(key, vec))
		idx.idMap[id] = key
		idx.keyMap[key] = id
		idx.vecMap[key] = vec
	}
	return nil
}

// DeleteByIDs tombstones ids. They stop appearing in Search results
// immediately; the underlying graph nodes are reclaimed on the next Save.
func (idx *Index) DeleteByIDs(ctx context.Context, ids []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("vector index is closed")
	}
	for _, id := range ids {
		if key, exists := idx.idMap[id]; exists {
			delete(idx.keyMap, key)
			delete(idx.vecMap, key)
			delete(idx.idMap, id)
		}
	}
	return nil
}

// Match is a single vector search result.
type Match struct {
	ChunkID  string
	Score    float64
	Distance float64
}

// Search returns up to effort nearest neighbours of query, where
// effort = max(top_k * fetch_factor, top_k), tombstoned entries excluded.
func (idx *Index) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != idx.cfg.Dimensions {
		return nil, DimensionMismatchError{Expected: idx.cfg.Dimensions, Got: len(query)}
	}
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	effort := topK * idx.cfg.FetchFactor
	if effort < topK {
		effort = topK
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	nodes := idx.graph.Search(q, effort)
	out := make([]Match, 0, len(nodes))
	for _, node := range nodes {
		id, ok := idx.keyMap[node.Key]
		if !ok {
			continue
		}
		dist := float64(idx.graph.Distance(q, node.Value))
		out = append(out, Match{
			ChunkID:  id,
			Distance: dist,
			Score:    1 - dist/2,
		})
	}
	return out, nil
}

// Count returns the number of live (non-tombstoned) vectors.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idMap)
}

// Close marks the index unusable. coder/hnsw holds no external resources,
// so this only guards against use-after-close.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

func normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// Save snapshots the index to dir as map.tsv ("<label>\t<chunk-id>\n" per
// live entry) and vectors.bin ([u32 LE dim][f32 LE x dim] per label, in
// label order), each written to a .tmp file and renamed into place so a
// crash mid-write never leaves a half-written snapshot visible.
func (idx *Index) Save(dir string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	labels := make([]uint64, 0, len(idx.keyMap))
	for k := range idx.keyMap {
		labels = append(labels, k)
	}
	sortUint64(labels)

	if err := idx.writeMap(dir, labels); err != nil {
		return err
	}
	return idx.writeVectors(dir, labels)
}

func (idx *Index) writeMap(dir string, labels []uint64) error {
	path := filepath.Join(dir, mapFileName)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, label := range labels {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", label, idx.keyMap[label]); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write map entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (idx *Index) writeVectors(dir string, labels []uint64) error {
	path := filepath.Join(dir, vecFileName)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(idx.cfg.Dimensions))

	for _, label := range labels {
		vec, ok := idx.vecMap[label]
		if !ok {
			continue
		}
		if _, err := w.Write(hdr[:]); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write dim header: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write vector for label %d: %w", label, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Load rebuilds an index from a snapshot written by Save. The graph is not
// deserialised: every vector is re-inserted through the same Add path used
// at ingest time, so the reconstructed graph is a deterministic function of
// the vectors and cfg regardless of hnsw's internal layout in the version
// that wrote the snapshot.
func Load(dir string, cfg Config) (*Index, error) {
	cfg = cfg.withDefaults()

	mapPath := filepath.Join(dir, mapFileName)
	vecPath := filepath.Join(dir, vecFileName)

	labelToID, order, err := readMap(mapPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mapPath, err)
	}
	vectors, err := readVectors(vecPath, cfg.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", vecPath, err)
	}
	if len(vectors) != len(order) {
		return nil, fmt.Errorf("map.tsv has %d entries but vectors.bin has %d", len(order), len(vectors))
	}

	idx := New(cfg)
	for i, label := range order {
		id := labelToID[label]
		vec := vectors[i]
		if len(vec) != cfg.Dimensions {
			return nil, DimensionMismatchError{Expected: cfg.Dimensions, Got: len(vec)}
		}
		if err := idx.Upsert(context.Background(), []string{id}, [][]float32{vec}); err != nil {
			return nil, fmt.Errorf("rebuild vector for label %d: %w", label, err)
		}
	}
	return idx, nil
}

func readMap(path string) (map[uint64]string, []uint64, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[uint64]string{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	labelToID := make(map[uint64]string)
	var order []uint64
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("malformed map.tsv line: %q", line)
		}
		label, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("malformed label in map.tsv: %q", parts[0])
		}
		labelToID[label] = parts[1]
		order = append(order, label)
	}
	return labelToID, order, nil
}

func readVectors(path string, dim int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out [][]float32
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("read dim header: %w", err)
		}
		n := int(binary.LittleEndian.Uint32(hdr[:]))
		if n != dim {
			return nil, fmt.Errorf("vectors.bin entry has dimension %d, expected %d", n, dim)
		}
		vec := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, &vec); err != nil {
			return nil, fmt.Errorf("read vector body: %w", err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func sortUint64(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
