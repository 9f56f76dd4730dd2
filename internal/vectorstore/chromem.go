package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/chunker"
	"github.com/ziadkadry99/clove/internal/ragerr"
)

// ChromemConfig configures a ChromemStore.
type ChromemConfig struct {
	// Path enables on-disk persistence. Empty keeps everything in memory.
	Path       string
	Dimensions int
	// EmbeddingFunc embeds documents added without a vector. Optional.
	EmbeddingFunc chromem.EmbeddingFunc
	Concurrency   int
	Logger        zerolog.Logger
}

// ChromemStore implements Store using the embedded chromem-go database.
// chromem matches where clauses exactly, so every payload field is
// filterable; the collection metadata records the schema.
type ChromemStore struct {
	db          *chromem.DB
	dims        int
	ef          chromem.EmbeddingFunc
	concurrency int
	log         zerolog.Logger

	// Serialises check-then-create in EnsureCollection.
	mu sync.Mutex
}

// NewChromemStore opens a chromem database.
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, ragerr.NewProvider(ragerr.StageStore, "open chromem db "+cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	ef := cfg.EmbeddingFunc
	if ef == nil {
		ef = noEmbeddingFunc
	}

	return &ChromemStore{
		db:          db,
		dims:        cfg.Dimensions,
		ef:          ef,
		concurrency: concurrency,
		log:         cfg.Logger,
	}, nil
}

func noEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: documents must be added with precomputed embeddings")
}

func (s *ChromemStore) EnsureCollection(ctx context.Context, name string) error {
	_, err := s.ensure(collectionOrDefault(name))
	return err
}

func (s *ChromemStore) ensure(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col := s.db.GetCollection(name, s.ef); col != nil {
		return col, nil
	}

	metadata := map[string]string{
		"dimension":      strconv.Itoa(s.dims),
		"distance":       DistanceCosine,
		"indexed_fields": strings.Join(IndexedFields, ","),
	}
	col, err := s.db.CreateCollection(name, metadata, s.ef)
	if err != nil {
		return nil, ragerr.NewProvider(ragerr.StageStore, "create collection "+name, err)
	}
	s.log.Info().Str("collection", name).Int("dimension", s.dims).Msg("created collection")
	return col, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, chunks []chunker.CodeChunk, vectors [][]float32, collection string) ([]string, error) {
	points, err := BuildPoints(chunks, vectors, s.dims)
	if err != nil {
		return nil, err
	}
	name := collectionOrDefault(collection)
	col, err := s.ensure(name)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return []string{}, nil
	}

	docs := make([]chromem.Document, len(points))
	ids := make([]string, len(points))
	for i, p := range points {
		text, meta := splitPayload(p.Payload)
		docs[i] = chromem.Document{
			ID:        p.ID,
			Metadata:  toChromemMetadata(meta),
			Embedding: p.Vector,
			Content:   text,
		}
		ids[i] = p.ID
	}

	if err := col.AddDocuments(ctx, docs, s.concurrency); err != nil {
		if derr := col.Delete(context.WithoutCancel(ctx), nil, nil, ids...); derr != nil {
			s.log.Error().Err(derr).Str("collection", name).Int("points", len(ids)).Msg("rollback of failed upsert failed")
		}
		return nil, ragerr.NewProvider(ragerr.StageStore, "upsert points into "+name, err)
	}
	return ids, nil
}

func (s *ChromemStore) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, ragerr.Validationf(ragerr.StageSearch, "query vector is empty")
	}
	name := collectionOrDefault(opts.Collection)
	log := s.log.With().Str("stage", string(ragerr.StageSearch)).Str("collection", name).Logger()

	col := s.db.GetCollection(name, s.ef)
	if col == nil {
		if err := s.EnsureCollection(ctx, name); err != nil {
			log.Warn().Err(err).Msg("ensure collection failed")
		}
		return []SearchResult{}, nil
	}

	count := col.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	// chromem rejects n larger than the collection.
	n := min(ClampLimit(opts.Limit), count)

	var where map[string]string
	if conds := opts.Filter.Conditions(); len(conds) > 0 {
		where = conds
	}

	found, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		log.Warn().Err(err).Msg("search failed, returning no results")
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(found))
	for _, r := range found {
		results = append(results, SearchResult{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Text:     r.Content,
			Metadata: fromChromemMetadata(r.Metadata),
		})
	}
	return applyThreshold(results, opts.ScoreThreshold), nil
}

func (s *ChromemStore) Delete(ctx context.Context, ids []string, collection string) error {
	if len(ids) == 0 {
		return nil
	}
	name := collectionOrDefault(collection)
	col := s.db.GetCollection(name, s.ef)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return ragerr.NewProvider(ragerr.StageStore, "delete points from "+name, err)
	}
	return nil
}

// Count returns the number of points in the named collection.
func (s *ChromemStore) Count(collection string) int {
	col := s.db.GetCollection(collectionOrDefault(collection), s.ef)
	if col == nil {
		return 0
	}
	return col.Count()
}

func (s *ChromemStore) Close() error { return nil }

// toChromemMetadata converts a payload to chromem's flat string map.
func toChromemMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k := range meta {
		out[k] = MetaString(meta, k)
	}
	return out
}

// fromChromemMetadata restores integer payload fields.
func fromChromemMetadata(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if intKeys[k] {
			n, _ := strconv.Atoi(v)
			out[k] = n
			continue
		}
		out[k] = v
	}
	return out
}
