package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/clove/internal/chunker"
	"github.com/ziadkadry99/clove/internal/ragerr"
)

const (
	defaultQdrantURL        = "http://localhost:6333"
	defaultUpsertBatchSize  = 100
	defaultUpsertConcurrent = 4
)

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Dimensions int
	// UpsertBatchSize is the number of points per upsert request.
	UpsertBatchSize int
	// UpsertConcurrency bounds in-flight upsert requests.
	UpsertConcurrency int
	Timeout           time.Duration
	Logger            zerolog.Logger
}

// QdrantStore implements Store against the Qdrant REST API.
type QdrantStore struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	dims        int
	batchSize   int
	concurrency int
	log         zerolog.Logger
}

// NewQdrantStore creates a Qdrant-backed store. No request is made until
// the first call.
func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	url := cfg.URL
	if url == "" {
		url = defaultQdrantURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = defaultUpsertBatchSize
	}
	conc := cfg.UpsertConcurrency
	if conc <= 0 {
		conc = defaultUpsertConcurrent
	}
	return &QdrantStore{
		baseURL:     strings.TrimRight(url, "/"),
		apiKey:      cfg.APIKey,
		client:      &http.Client{Timeout: timeout},
		dims:        cfg.Dimensions,
		batchSize:   batch,
		concurrency: conc,
		log:         cfg.Logger,
	}
}

// statusError is a non-2xx Qdrant response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant status %d: %s", e.Code, e.Body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string) error {
	name = collectionOrDefault(name)

	_, err := s.doRequest(ctx, http.MethodGet, "/collections/"+name, nil)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return ragerr.NewProvider(ragerr.StageStore, "get collection "+name, err)
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     s.dims,
			"distance": DistanceCosine,
		},
	}
	if _, err := s.doRequest(ctx, http.MethodPut, "/collections/"+name, create); err != nil {
		// Another run may have created it between the check and the create.
		if _, getErr := s.doRequest(ctx, http.MethodGet, "/collections/"+name, nil); getErr == nil {
			return nil
		}
		return ragerr.NewProvider(ragerr.StageStore, "create collection "+name, err)
	}

	for _, field := range IndexedFields {
		var schema any = "keyword"
		if field == KeyRepositoryID {
			schema = map[string]any{"type": "keyword", "is_tenant": true}
		}
		body := map[string]any{"field_name": field, "field_schema": schema}
		if _, err := s.doRequest(ctx, http.MethodPut, "/collections/"+name+"/index?wait=true", body); err != nil {
			return ragerr.NewProvider(ragerr.StageStore, "create payload index "+field, err)
		}
	}
	s.log.Info().Str("collection", name).Int("dimension", s.dims).Msg("created collection")
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, chunks []chunker.CodeChunk, vectors [][]float32, collection string) ([]string, error) {
	points, err := BuildPoints(chunks, vectors, s.dims)
	if err != nil {
		return nil, err
	}
	name := collectionOrDefault(collection)
	if err := s.EnsureCollection(ctx, name); err != nil {
		return nil, err
	}

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for start := 0; start < len(points); start += s.batchSize {
		end := min(start+s.batchSize, len(points))
		batchNo := start/s.batchSize + 1
		batch := points[start:end]
		g.Go(func() error {
			body := map[string]any{"points": qdrantPoints(batch)}
			if _, err := s.doRequest(gctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body); err != nil {
				return ragerr.NewBatchProvider(ragerr.StageStore, "upsert points into "+name, batchNo, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Batches that did land must not outlive the failed write.
		if derr := s.Delete(context.WithoutCancel(ctx), ids, name); derr != nil {
			s.log.Error().Err(derr).Str("collection", name).Int("points", len(ids)).Msg("rollback of failed upsert failed")
		}
		return nil, err
	}
	return ids, nil
}

func qdrantPoints(points []Point) []map[string]any {
	out := make([]map[string]any, len(points))
	for i, p := range points {
		out[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	return out
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, ragerr.Validationf(ragerr.StageSearch, "query vector is empty")
	}
	name := collectionOrDefault(opts.Collection)
	log := s.log.With().Str("stage", string(ragerr.StageSearch)).Str("collection", name).Logger()

	req := map[string]any{
		"vector":       vector,
		"limit":        ClampLimit(opts.Limit),
		"with_payload": true,
	}
	if conds := opts.Filter.Conditions(); len(conds) > 0 {
		must := make([]map[string]any, 0, len(conds))
		for _, key := range []string{KeyRepositoryID, KeyFilePath, KeyType} {
			if v, ok := conds[key]; ok {
				must = append(must, qdrantMatchFilter(key, v))
			}
		}
		req["filter"] = map[string]any{"must": must}
	}
	if opts.ScoreThreshold != nil {
		req["score_threshold"] = *opts.ScoreThreshold
	}

	data, err := s.doRequest(ctx, http.MethodPost, "/collections/"+name+"/points/search", req)
	if err != nil {
		if isNotFound(err) {
			if err := s.EnsureCollection(ctx, name); err != nil {
				log.Warn().Err(err).Msg("ensure collection failed")
			}
			return []SearchResult{}, nil
		}
		log.Warn().Err(err).Msg("search failed, returning no results")
		return []SearchResult{}, nil
	}

	var parsed struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		log.Warn().Err(err).Msg("decode search response failed, returning no results")
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(parsed.Result))
	for _, item := range parsed.Result {
		text, meta := splitPayload(item.Payload)
		results = append(results, SearchResult{
			ID:       fmt.Sprintf("%v", item.ID),
			Score:    item.Score,
			Text:     text,
			Metadata: meta,
		})
	}
	return applyThreshold(results, opts.ScoreThreshold), nil
}

func (s *QdrantStore) Delete(ctx context.Context, ids []string, collection string) error {
	if len(ids) == 0 {
		return nil
	}
	name := collectionOrDefault(collection)
	body := map[string]any{"points": ids}
	if _, err := s.doRequest(ctx, http.MethodPost, "/collections/"+name+"/points/delete?wait=true", body); err != nil {
		if isNotFound(err) {
			s.log.Debug().Str("collection", name).Msg("delete from missing collection")
			return nil
		}
		return ragerr.NewProvider(ragerr.StageStore, "delete points from "+name, err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *QdrantStore) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func qdrantMatchFilter(key string, value any) map[string]any {
	return map[string]any{
		"key": key,
		"match": map[string]any{
			"value": value,
		},
	}
}
