// Package rag runs the retrieval pipeline end to end: indexing a checked-out
// repository into the vector store and retrieving sources for a question.
package rag

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/chunker"
	"github.com/ziadkadry99/clove/internal/contextbuilder"
	"github.com/ziadkadry99/clove/internal/embeddings"
	"github.com/ziadkadry99/clove/internal/ragerr"
	"github.com/ziadkadry99/clove/internal/tokens"
	"github.com/ziadkadry99/clove/internal/vectorstore"
	"github.com/ziadkadry99/clove/internal/walker"
)

// Config holds the pipeline settings that are not owned by a component.
type Config struct {
	// Collection defaults to vectorstore.DefaultCollection.
	Collection string
	// IncludePathPrefix prepends "File: <path>" to the text that is
	// embedded for each chunk.
	IncludePathPrefix bool
	ChunkConcurrency  int

	Include       []string
	Exclude       []string
	MaxFileSize   int64
	AllowDotfiles []string
}

// Service indexes repositories and answers retrieval queries over them.
type Service struct {
	chunker    chunker.Chunker
	generator  *embeddings.Generator
	store      vectorstore.Store
	builder    *contextbuilder.Builder
	cfg        Config
	log        zerolog.Logger
	onProgress ProgressFunc
}

// NewService wires the pipeline components together.
func NewService(c chunker.Chunker, g *embeddings.Generator, store vectorstore.Store, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Collection == "" {
		cfg.Collection = vectorstore.DefaultCollection
	}
	return &Service{
		chunker:   c,
		generator: g,
		store:     store,
		builder:   contextbuilder.New(logger),
		cfg:       cfg,
		log:       logger,
	}
}

// SetProgressFunc sets the progress callback for index runs.
func (s *Service) SetProgressFunc(fn ProgressFunc) {
	s.onProgress = fn
}

// Collection returns the collection the service reads and writes.
func (s *Service) Collection() string { return s.cfg.Collection }

func (s *Service) progress(phase Phase, done, total int) {
	if s.onProgress != nil {
		s.onProgress(phase, done, total)
	}
}

// IndexRepository walks, chunks, embeds and stores every eligible file under
// req.RootPath. Points are written only after every embedding batch has
// succeeded, and the write itself is not cancelled by ctx once started. A
// repository with no chunkable content yields no points and no error.
func (s *Service) IndexRepository(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	start := time.Now()
	if strings.TrimSpace(req.RepositoryID) == "" {
		return nil, ragerr.Validationf(ragerr.StageWalk, "repository id is required")
	}
	log := s.log.With().Str("repository", req.RepositoryID).Logger()

	files, err := walker.Walk(walker.WalkerConfig{
		RootDir:       req.RootPath,
		Include:       s.cfg.Include,
		Exclude:       s.cfg.Exclude,
		MaxFileSize:   s.cfg.MaxFileSize,
		AllowDotfiles: s.cfg.AllowDotfiles,
		Logger:        s.log,
	})
	if err != nil {
		return nil, err
	}
	s.progress(PhaseWalk, len(files), len(files))
	log.Info().Int("files", len(files)).Msg("walked repository")

	chunks, err := chunker.ChunkFiles(ctx, s.chunker, files, chunker.FilesConfig{
		RepositoryID:  req.RepositoryID,
		RepositoryURL: req.RepositoryURL,
		Concurrency:   s.cfg.ChunkConcurrency,
		Logger:        s.log,
	})
	if err != nil {
		return nil, ragerr.NewProvider(ragerr.StageChunk, "chunk files", err)
	}
	s.progress(PhaseChunk, len(chunks), len(chunks))

	result := &IndexResult{PointIDs: []string{}, Files: len(files), Chunks: len(chunks)}
	if len(chunks) == 0 {
		log.Info().Msg("no chunks produced, nothing to store")
		result.Duration = time.Since(start)
		return result, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = chunker.EmbeddingText(c, s.cfg.IncludePathPrefix)
	}
	vectors, err := s.generator.EmbedWithProgress(ctx, texts, func(done, total int) {
		s.progress(PhaseEmbed, done, total)
	})
	if err != nil {
		return nil, err
	}

	// Past this point a cancelled caller must not leave half a repository
	// in the collection.
	writeCtx := context.WithoutCancel(ctx)
	if err := s.store.EnsureCollection(writeCtx, s.cfg.Collection); err != nil {
		return nil, err
	}
	ids, err := s.store.Upsert(writeCtx, chunks, vectors, s.cfg.Collection)
	if err != nil {
		return nil, err
	}
	s.progress(PhaseStore, len(ids), len(chunks))

	result.PointIDs = ids
	result.Duration = time.Since(start)
	log.Info().
		Int("files", result.Files).
		Int("chunks", result.Chunks).
		Int("points", len(ids)).
		Dur("duration", result.Duration).
		Msg("indexed repository")
	return result, nil
}

// QueryRepository embeds the query and returns the best matching sources of
// one repository in descending score order. Only invalid input is an error;
// provider and store failures are logged and yield no sources.
func (s *Service) QueryRepository(ctx context.Context, req QueryRequest) ([]Source, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ragerr.Validationf(ragerr.StageSearch, "query is required")
	}
	if strings.TrimSpace(req.RepositoryID) == "" {
		return nil, ragerr.Validationf(ragerr.StageSearch, "repository id is required")
	}

	vector, err := s.generator.EmbedQuery(ctx, req.Query)
	if err != nil {
		if ragerr.IsValidation(err) {
			return nil, err
		}
		s.log.Warn().Err(err).Str("stage", "search").Str("repository", req.RepositoryID).Msg("query embedding failed, returning no sources")
		return []Source{}, nil
	}

	results, err := s.store.Search(ctx, vector, vectorstore.SearchOptions{
		Filter: vectorstore.Filter{
			RepositoryID: req.RepositoryID,
			FilePath:     req.FilePath,
			Type:         req.Type,
		},
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
		Collection:     s.cfg.Collection,
	})
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{Content: r.Text, Metadata: r.Metadata, Score: r.Score})
	}
	if req.MaxTokens > 0 {
		sources = fitTokens(sources, req.MaxTokens)
	}

	s.log.Debug().
		Str("repository", req.RepositoryID).
		Int("results", len(results)).
		Int("sources", len(sources)).
		Msg("queried repository")
	return sources, nil
}

// fitTokens keeps the leading sources whose formatted text fits in budget.
func fitTokens(sources []Source, budget int) []Source {
	used := 0
	for i, src := range sources {
		used += tokens.Estimate(src.Format())
		if used > budget {
			return sources[:i]
		}
	}
	return sources
}

// BuildContext packs sources into a prompt context. It never fails.
func (s *Service) BuildContext(sources []Source, opts contextbuilder.Options) contextbuilder.Result {
	return s.builder.Build(sources, opts)
}

// DeleteRepository removes previously indexed points. Callers pass the ids
// IndexRepository returned.
func (s *Service) DeleteRepository(ctx context.Context, pointIDs []string) error {
	if len(pointIDs) == 0 {
		return nil
	}
	return s.store.Delete(ctx, pointIDs, s.cfg.Collection)
}

// Close releases the vector store.
func (s *Service) Close() error {
	return s.store.Close()
}
