package registry

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/gitclone"
	"github.com/ziadkadry99/clove/internal/rag"
	"github.com/ziadkadry99/clove/internal/ragerr"
)

// Cloner checks out a repository for indexing.
type Cloner interface {
	Clone(ctx context.Context, url, branch string) (*gitclone.Checkout, error)
}

// Indexer drives repositories through the index lifecycle and keeps the
// registry in step with the vector store.
type Indexer struct {
	store  *Store
	svc    *rag.Service
	cloner Cloner
	log    zerolog.Logger

	mu       sync.Mutex
	active   map[string]bool
	querying map[string]int
}

// NewIndexer creates an Indexer.
func NewIndexer(store *Store, svc *rag.Service, cloner Cloner, logger zerolog.Logger) *Indexer {
	return &Indexer{store: store, svc: svc, cloner: cloner, log: logger, active: map[string]bool{}, querying: map[string]int{}}
}

// Store returns the registry store.
func (ix *Indexer) Store() *Store { return ix.store }

// Service returns the retrieval service.
func (ix *Indexer) Service() *rag.Service { return ix.svc }

// RegisterRequest describes a repository to register.
type RegisterRequest struct {
	// ID is generated when empty.
	ID          string
	URL         string
	Branch      string
	Name        string
	Owner       string
	Description string
}

// Register records a repository without indexing it. Registering a URL
// that is already known returns the existing record.
func (ix *Indexer) Register(ctx context.Context, req RegisterRequest) (*Repository, error) {
	repo := &Repository{
		ID:          req.ID,
		URL:         strings.TrimSpace(req.URL),
		Branch:      req.Branch,
		Name:        req.Name,
		Owner:       req.Owner,
		Description: req.Description,
	}
	if repo.Branch == "" {
		repo.Branch = gitclone.DefaultBranch
	}
	if repo.URL != "" {
		if err := gitclone.ValidateURL(repo.URL); err != nil {
			return nil, err
		}
		if existing, err := ix.store.GetByURL(ctx, repo.URL); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
		if repo.Owner == "" || repo.Name == "" {
			if owner, name, err := gitclone.ParseRepoURL(repo.URL); err == nil {
				repo.Owner = firstNonEmpty(repo.Owner, owner)
				repo.Name = firstNonEmpty(repo.Name, name)
			}
		}
	}
	if repo.ID != "" {
		if existing, err := ix.store.Get(ctx, repo.ID); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}
	if repo.URL == "" && repo.ID == "" {
		return nil, ragerr.Validationf(ragerr.StageClone, "repository URL or id is required")
	}
	if err := ix.store.Add(ctx, repo); err != nil {
		return nil, err
	}
	ix.log.Info().Str("repository", repo.ID).Str("url", repo.URL).Msg("registered repository")
	return repo, nil
}

// Get returns the repository or a NotFound error.
func (ix *Indexer) Get(ctx context.Context, id string) (*Repository, error) {
	repo, err := ix.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, ragerr.NewNotFound(ragerr.StageSearch, "repository "+id)
	}
	return repo, nil
}

// Index clones the repository's URL and rebuilds its points.
func (ix *Indexer) Index(ctx context.Context, id string) (*Repository, error) {
	repo, err := ix.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if repo.URL == "" {
		return nil, ragerr.Validationf(ragerr.StageClone, "repository %s has no URL to clone", id)
	}
	if err := ix.begin(ctx, repo); err != nil {
		return nil, err
	}
	defer ix.end(repo.ID)

	checkout, err := ix.cloner.Clone(ctx, repo.URL, repo.Branch)
	if err != nil {
		return repo, ix.fail(ctx, repo, err)
	}
	defer checkout.Remove()

	return ix.run(ctx, repo, checkout.Path)
}

// IndexPath rebuilds the repository's points from an existing local tree.
func (ix *Indexer) IndexPath(ctx context.Context, id, root string) (*Repository, error) {
	repo, err := ix.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ix.begin(ctx, repo); err != nil {
		return nil, err
	}
	defer ix.end(repo.ID)
	return ix.run(ctx, repo, root)
}

// begin marks the repository as indexing. Only one run per repository may
// be in flight in this process; a status left over from a crashed process
// does not block a new run.
func (ix *Indexer) begin(ctx context.Context, repo *Repository) error {
	ix.mu.Lock()
	if ix.active[repo.ID] {
		ix.mu.Unlock()
		return ragerr.Validationf(ragerr.StageWalk, "repository %s is already being indexed", repo.ID)
	}
	ix.active[repo.ID] = true
	ix.mu.Unlock()

	repo.Status = rag.StateIndexing
	repo.Error = ""
	if err := ix.store.Update(ctx, repo); err != nil {
		ix.end(repo.ID)
		return err
	}
	return nil
}

func (ix *Indexer) end(id string) {
	ix.mu.Lock()
	delete(ix.active, id)
	ix.mu.Unlock()
}

func (ix *Indexer) run(ctx context.Context, repo *Repository, root string) (*Repository, error) {
	res, err := ix.svc.IndexRepository(ctx, rag.IndexRequest{
		RootPath:      root,
		RepositoryID:  repo.ID,
		RepositoryURL: repo.URL,
	})
	if err != nil {
		return repo, ix.fail(ctx, repo, err)
	}

	// A rebuild replaces the previous run's points only once it succeeded.
	// Points that could not be deleted stay tracked so the next run or a
	// repository delete retries them.
	pointIDs := res.PointIDs
	stale := repo.PointIDs
	if err := ix.svc.DeleteRepository(context.WithoutCancel(ctx), stale); err != nil {
		ix.log.Warn().Err(err).Str("repository", repo.ID).Int("points", len(stale)).Msg("failed to delete previous points")
		pointIDs = append(slices.Clone(pointIDs), stale...)
	}

	now := time.Now().UTC()
	repo.Status = rag.StateIndexed
	repo.PointIDs = pointIDs
	repo.FilesIndexed = res.Files
	repo.ChunksIndexed = len(res.PointIDs)
	repo.IndexedAt = &now
	if repo.Name == "" {
		repo.Name = filepath.Base(root)
	}
	if err := ix.store.Update(context.WithoutCancel(ctx), repo); err != nil {
		return repo, err
	}
	return repo, nil
}

// fail records err on the repository and returns it. Points of an earlier
// successful run stay tracked so they can still be deleted.
func (ix *Indexer) fail(ctx context.Context, repo *Repository, err error) error {
	repo.Status = rag.StateFailed
	repo.Error = err.Error()
	ix.log.Error().Err(err).
		Str("repository", repo.ID).
		Str("stage", string(ragerr.StageOf(err))).
		Msg("indexing failed")
	if uerr := ix.store.Update(context.WithoutCancel(ctx), repo); uerr != nil {
		return errors.Join(err, uerr)
	}
	return err
}

// Query retrieves sources from an indexed repository.
func (ix *Indexer) Query(ctx context.Context, req rag.QueryRequest) ([]rag.Source, error) {
	if _, err := ix.Get(ctx, req.RepositoryID); err != nil {
		return nil, err
	}
	if err := ix.beginQuery(ctx, req.RepositoryID); err != nil {
		return nil, err
	}
	defer ix.endQuery(context.WithoutCancel(ctx), req.RepositoryID)
	return ix.svc.QueryRepository(ctx, req)
}

// beginQuery moves an indexed repository to querying for as long as any
// query against it is in flight. Repositories in any other state keep it.
func (ix *Indexer) beginQuery(ctx context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.querying[id]++
	if ix.querying[id] > 1 || ix.active[id] {
		return nil
	}
	if err := ix.swapStatus(ctx, id, rag.StateIndexed, rag.StateQuerying); err != nil {
		delete(ix.querying, id)
		return err
	}
	return nil
}

func (ix *Indexer) endQuery(ctx context.Context, id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.querying[id]--; ix.querying[id] > 0 {
		return
	}
	delete(ix.querying, id)
	if ix.active[id] {
		return
	}
	if err := ix.swapStatus(ctx, id, rag.StateQuerying, rag.StateIndexed); err != nil {
		ix.log.Warn().Err(err).Str("repository", id).Msg("could not restore indexed state")
	}
}

// swapStatus sets the repository to next if it is currently in from.
// Callers hold ix.mu.
func (ix *Indexer) swapStatus(ctx context.Context, id string, from, next rag.State) error {
	repo, err := ix.store.Get(ctx, id)
	if err != nil || repo == nil || repo.Status != from {
		return err
	}
	repo.Status = next
	return ix.store.Update(ctx, repo)
}

// Delete removes the repository's points and then its record.
func (ix *Indexer) Delete(ctx context.Context, id string) error {
	repo, err := ix.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := ix.svc.DeleteRepository(ctx, repo.PointIDs); err != nil {
		return err
	}
	if err := ix.store.Remove(ctx, id); err != nil {
		return err
	}
	ix.log.Info().Str("repository", id).Int("points", len(repo.PointIDs)).Msg("deleted repository")
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
