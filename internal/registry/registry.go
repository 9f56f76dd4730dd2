// Package registry records which repositories have been indexed and the
// vector store points that belong to each of them.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/clove/internal/db"
	"github.com/ziadkadry99/clove/internal/rag"
)

// Repository is a registered repository and the outcome of its last index run.
type Repository struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Owner         string     `json:"owner"`
	URL           string     `json:"url"`
	Branch        string     `json:"branch"`
	Description   string     `json:"description,omitempty"`
	Status        rag.State  `json:"status"`
	FilesIndexed  int        `json:"files_indexed"`
	ChunksIndexed int        `json:"chunks_indexed"`
	PointIDs      []string   `json:"-"`
	Error         string     `json:"error,omitempty"`
	IndexedAt     *time.Time `json:"indexed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Store provides CRUD operations for the repository registry.
type Store struct {
	db *db.DB
}

// NewStore creates a new registry store.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

const repoColumns = `id, name, owner, url, branch, description, status, files_indexed, chunks_indexed, point_ids, error, indexed_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRepo(row scanner) (*Repository, error) {
	var (
		r         Repository
		status    string
		pointIDs  string
		indexedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Owner, &r.URL, &r.Branch, &r.Description,
		&status, &r.FilesIndexed, &r.ChunksIndexed, &pointIDs, &r.Error,
		&indexedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = rag.State(status)
	if err := json.Unmarshal([]byte(pointIDs), &r.PointIDs); err != nil {
		return nil, fmt.Errorf("decoding point ids of %s: %w", r.ID, err)
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		r.IndexedAt = &t
	}
	return &r, nil
}

// Add inserts a new repository.
func (s *Store) Add(ctx context.Context, repo *Repository) error {
	if repo.ID == "" {
		repo.ID = uuid.NewString()
	}
	if repo.Status == "" {
		repo.Status = rag.StateUnindexed
	}
	if repo.PointIDs == nil {
		repo.PointIDs = []string{}
	}
	now := time.Now().UTC()
	repo.CreatedAt = now
	repo.UpdatedAt = now

	pointIDs, err := json.Marshal(repo.PointIDs)
	if err != nil {
		return fmt.Errorf("encoding point ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO repositories (`+repoColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.Name, repo.Owner, repo.URL, repo.Branch, repo.Description,
		string(repo.Status), repo.FilesIndexed, repo.ChunksIndexed, string(pointIDs),
		repo.Error, repo.IndexedAt, repo.CreatedAt, repo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding repository: %w", err)
	}
	return nil
}

// Get retrieves a repository by ID. It returns nil, nil when there is none.
func (s *Store) Get(ctx context.Context, id string) (*Repository, error) {
	r, err := scanRepo(s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting repository: %w", err)
	}
	return r, nil
}

// GetByURL retrieves a repository by its source URL. It returns nil, nil
// when there is none.
func (s *Store) GetByURL(ctx context.Context, url string) (*Repository, error) {
	r, err := scanRepo(s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE url = ?`, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting repository by URL: %w", err)
	}
	return r, nil
}

// List returns all registered repositories.
func (s *Store) List(ctx context.Context) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repositories ORDER BY owner, name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	repos := []Repository{}
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning repository: %w", err)
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

// Update writes every mutable field of repo.
func (s *Store) Update(ctx context.Context, repo *Repository) error {
	if repo.PointIDs == nil {
		repo.PointIDs = []string{}
	}
	pointIDs, err := json.Marshal(repo.PointIDs)
	if err != nil {
		return fmt.Errorf("encoding point ids: %w", err)
	}
	repo.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET name=?, owner=?, url=?, branch=?, description=?, status=?,
		 files_indexed=?, chunks_indexed=?, point_ids=?, error=?, indexed_at=?, updated_at=?
		 WHERE id=?`,
		repo.Name, repo.Owner, repo.URL, repo.Branch, repo.Description, string(repo.Status),
		repo.FilesIndexed, repo.ChunksIndexed, string(pointIDs), repo.Error,
		repo.IndexedAt, repo.UpdatedAt, repo.ID,
	)
	if err != nil {
		return fmt.Errorf("updating repository: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Remove deletes a repository record by ID.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing repository: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
