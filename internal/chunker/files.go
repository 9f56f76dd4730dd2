package chunker

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/clove/internal/walker"
)

// FilesConfig controls ChunkFiles.
type FilesConfig struct {
	RepositoryID  string
	RepositoryURL string
	// Concurrency bounds the number of files chunked at once
	// (0 = GOMAXPROCS).
	Concurrency int
	Logger      zerolog.Logger
}

// ChunkFiles reads and chunks every file concurrently. A file that cannot be
// read or chunked is logged and contributes no chunks. The result keeps the
// order of files and, within a file, the chunk order.
func ChunkFiles(ctx context.Context, c Chunker, files []walker.FileInfo, cfg FilesConfig) ([]CodeChunk, error) {
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	log := cfg.Logger

	perFile := make([][]CodeChunk, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunks, err := chunkFile(c, f, cfg)
			if err != nil {
				log.Warn().Err(err).Str("stage", "chunk").Str("file", f.RelPath).Msg("skipping file")
				return nil
			}
			perFile[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, chunks := range perFile {
		total += len(chunks)
	}
	out := make([]CodeChunk, 0, total)
	for _, chunks := range perFile {
		out = append(out, chunks...)
	}
	return out, nil
}

func chunkFile(c Chunker, f walker.FileInfo, cfg FilesConfig) (chunks []CodeChunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunker panic: %v", r)
		}
	}()

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	chunks, err = c.Chunk(string(data), f.RelPath, cfg.RepositoryID, cfg.RepositoryURL)
	if err != nil {
		return nil, err
	}
	if f.Language != "" {
		for i := range chunks {
			chunks[i].Language = f.Language
		}
	}
	return chunks, nil
}
