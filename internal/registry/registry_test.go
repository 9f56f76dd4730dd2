package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/chunker"
	"github.com/ziadkadry99/clove/internal/db"
	"github.com/ziadkadry99/clove/internal/embeddings"
	"github.com/ziadkadry99/clove/internal/gitclone"
	"github.com/ziadkadry99/clove/internal/rag"
	"github.com/ziadkadry99/clove/internal/ragerr"
	"github.com/ziadkadry99/clove/internal/vectorstore"
)

const dims = 16

type charEmbedder struct{}

func (charEmbedder) Name() string    { return "char" }
func (charEmbedder) Dimensions() int { return dims }
func (charEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, dims)
		for j, ch := range text {
			v[(int(ch)+j)%dims]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		for j := range v {
			v[j] = float32(float64(v[j]) / math.Sqrt(norm))
		}
		out[i] = v
	}
	return out, nil
}

// dirCloner "clones" by writing a fixed set of files into a fresh directory.
type dirCloner struct {
	t     *testing.T
	files map[string]string
	err   error
	last  string
}

func (c *dirCloner) Clone(_ context.Context, url, branch string) (*gitclone.Checkout, error) {
	if c.err != nil {
		return nil, c.err
	}
	dir, err := os.MkdirTemp(c.t.TempDir(), "clone-")
	if err != nil {
		return nil, err
	}
	for name, body := range c.files {
		path := filepath.Join(dir, name)
		os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return nil, err
		}
	}
	c.last = dir
	return &gitclone.Checkout{Path: dir}, nil
}

// flakyDeletes fails every Delete while fail is set and calls onSearch
// before each Search.
type flakyDeletes struct {
	*vectorstore.ChromemStore
	fail     bool
	onSearch func()
}

func (s *flakyDeletes) Search(ctx context.Context, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	if s.onSearch != nil {
		s.onSearch()
	}
	return s.ChromemStore.Search(ctx, vector, opts)
}

func (s *flakyDeletes) Delete(ctx context.Context, ids []string, collection string) error {
	if s.fail {
		return errors.New("delete unavailable")
	}
	return s.ChromemStore.Delete(ctx, ids, collection)
}

type fixture struct {
	ix      *Indexer
	store   *Store
	vec     *vectorstore.ChromemStore
	deletes *flakyDeletes
	cloner  *dirCloner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	vec, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dimensions: dims})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	deletes := &flakyDeletes{ChromemStore: vec}
	svc := rag.NewService(
		chunker.New(chunker.Options{Strategy: chunker.StrategyLines, LinesPerChunk: 3}),
		embeddings.NewGenerator(charEmbedder{}, embeddings.GeneratorConfig{BatchDelay: -1}),
		deletes,
		rag.Config{},
		zerolog.Nop(),
	)
	cloner := &dirCloner{t: t, files: map[string]string{
		"main.go":         "package main\n\nfunc main() {\n\trun()\n}\n",
		"internal/run.go": "package internal\n\n// Run starts the worker pool.\nfunc Run() {}\n",
	}}
	store := NewStore(d)
	return &fixture{ix: NewIndexer(store, svc, cloner, zerolog.Nop()), store: store, vec: vec, deletes: deletes, cloner: cloner}
}

func TestStore_CRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo := &Repository{Name: "widget", Owner: "acme", URL: "https://github.com/acme/widget", Branch: "main"}
	if err := f.store.Add(ctx, repo); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if repo.ID == "" || repo.Status != rag.StateUnindexed {
		t.Fatalf("Add did not fill defaults: %+v", repo)
	}

	got, err := f.store.Get(ctx, repo.ID)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Name != "widget" || len(got.PointIDs) != 0 || got.IndexedAt != nil {
		t.Errorf("Get returned %+v", got)
	}

	got.PointIDs = []string{"p1", "p2"}
	got.Status = rag.StateIndexed
	if err := f.store.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	byURL, err := f.store.GetByURL(ctx, repo.URL)
	if err != nil || byURL == nil {
		t.Fatalf("GetByURL: %v, %v", byURL, err)
	}
	if len(byURL.PointIDs) != 2 || byURL.Status != rag.StateIndexed {
		t.Errorf("after update: %+v", byURL)
	}

	list, err := f.store.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v, %v", list, err)
	}

	if err := f.store.Remove(ctx, repo.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if missing, _ := f.store.Get(ctx, repo.ID); missing != nil {
		t.Error("repository still present after Remove")
	}
	if err := f.store.Remove(ctx, repo.ID); err == nil {
		t.Error("second Remove should fail")
	}
}

func TestIndexer_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo, err := f.ix.Register(ctx, RegisterRequest{URL: "https://github.com/acme/widget.git"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if repo.Owner != "acme" || repo.Name != "widget" || repo.Branch != "main" {
		t.Errorf("Register parsed %+v", repo)
	}
	again, _ := f.ix.Register(ctx, RegisterRequest{URL: "https://github.com/acme/widget.git"})
	if again.ID != repo.ID {
		t.Error("registering the same URL twice created a second record")
	}

	repo, err = f.ix.Index(ctx, repo.ID)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if repo.Status != rag.StateIndexed || repo.FilesIndexed != 2 || len(repo.PointIDs) == 0 {
		t.Fatalf("after Index: %+v", repo)
	}
	if _, err := os.Stat(f.cloner.last); !os.IsNotExist(err) {
		t.Error("checkout was not removed")
	}
	firstPoints := len(repo.PointIDs)
	if n := f.vec.Count(""); n != firstPoints {
		t.Errorf("store has %d points, want %d", n, firstPoints)
	}

	// Reindexing replaces the points instead of adding to them.
	repo, err = f.ix.Index(ctx, repo.ID)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if n := f.vec.Count(""); n != firstPoints {
		t.Errorf("after reindex store has %d points, want %d", n, firstPoints)
	}

	sources, err := f.ix.Query(ctx, rag.QueryRequest{Query: "worker pool", RepositoryID: repo.ID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(sources) == 0 {
		t.Fatal("expected sources")
	}

	if err := f.ix.Delete(ctx, repo.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := f.vec.Count(""); n != 0 {
		t.Errorf("store has %d points after delete", n)
	}
	if _, err := f.ix.Get(ctx, repo.ID); !ragerr.IsNotFound(err) {
		t.Errorf("Get after delete: %v", err)
	}
}

func TestIndexer_UndeletedPointsStayTracked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo, _ := f.ix.Register(ctx, RegisterRequest{URL: "https://github.com/acme/widget"})
	repo, err := f.ix.Index(ctx, repo.ID)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	perRun := len(repo.PointIDs)

	f.deletes.fail = true
	repo, err = f.ix.Index(ctx, repo.ID)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if repo.ChunksIndexed != perRun {
		t.Errorf("ChunksIndexed = %d, want %d", repo.ChunksIndexed, perRun)
	}
	stored, _ := f.store.Get(ctx, repo.ID)
	if len(stored.PointIDs) != 2*perRun {
		t.Fatalf("tracked %d points, want %d", len(stored.PointIDs), 2*perRun)
	}

	// The next successful run clears both generations.
	f.deletes.fail = false
	repo, err = f.ix.Index(ctx, repo.ID)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if len(repo.PointIDs) != perRun {
		t.Errorf("tracked %d points, want %d", len(repo.PointIDs), perRun)
	}
	if n := f.vec.Count(""); n != perRun {
		t.Errorf("store has %d points, want %d", n, perRun)
	}
}

func TestIndexer_CloneFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cloner.err = ragerr.NewProvider(ragerr.StageClone, "git clone", errors.New("remote hung up"))

	repo, _ := f.ix.Register(ctx, RegisterRequest{URL: "https://github.com/acme/broken"})
	_, err := f.ix.Index(ctx, repo.ID)
	if ragerr.StageOf(err) != ragerr.StageClone {
		t.Fatalf("expected clone error, got %v", err)
	}

	got, _ := f.store.Get(ctx, repo.ID)
	if got.Status != rag.StateFailed || got.Error == "" {
		t.Errorf("status = %s, error = %q", got.Status, got.Error)
	}

	// A failed run does not block the next one.
	f.cloner.err = nil
	if _, err := f.ix.Index(ctx, repo.ID); err != nil {
		t.Errorf("retry: %v", err)
	}
}

func TestIndexer_RegisterRejectsOptionLikeURL(t *testing.T) {
	f := newFixture(t)
	_, err := f.ix.Register(context.Background(), RegisterRequest{URL: "--upload-pack=touch /tmp/pwned"})
	if !ragerr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if list, _ := f.store.List(context.Background()); len(list) != 0 {
		t.Errorf("rejected URL was registered: %v", list)
	}
}

func TestIndexer_IndexPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "lib.py"), []byte("def handler(event):\n    return event\n"), 0o644)

	repo, err := f.ix.Register(ctx, RegisterRequest{ID: "local-lib"})
	if err != nil {
		t.Fatal(err)
	}
	repo, err = f.ix.IndexPath(ctx, repo.ID, root)
	if err != nil {
		t.Fatalf("IndexPath: %v", err)
	}
	if repo.Name != filepath.Base(root) || repo.ChunksIndexed != 1 {
		t.Errorf("after IndexPath: %+v", repo)
	}
}

func TestIndexer_QueryMarksRepositoryQuerying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo, _ := f.ix.Register(ctx, RegisterRequest{URL: "https://github.com/acme/widget"})
	if _, err := f.ix.Index(ctx, repo.ID); err != nil {
		t.Fatalf("Index: %v", err)
	}

	var during rag.State
	f.deletes.onSearch = func() {
		got, _ := f.store.Get(ctx, repo.ID)
		during = got.Status
	}
	if _, err := f.ix.Query(ctx, rag.QueryRequest{Query: "worker pool", RepositoryID: repo.ID}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if during != rag.StateQuerying {
		t.Errorf("status during query = %q, want %q", during, rag.StateQuerying)
	}
	after, _ := f.store.Get(ctx, repo.ID)
	if after.Status != rag.StateIndexed {
		t.Errorf("status after query = %q, want %q", after.Status, rag.StateIndexed)
	}
}

func TestIndexer_QueryLeavesFailedStateAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cloner.err = errors.New("network down")
	repo, _ := f.ix.Register(ctx, RegisterRequest{URL: "https://github.com/acme/widget"})
	f.ix.Index(ctx, repo.ID)

	if _, err := f.ix.Query(ctx, rag.QueryRequest{Query: "worker pool", RepositoryID: repo.ID}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	after, _ := f.store.Get(ctx, repo.ID)
	if after.Status != rag.StateFailed {
		t.Errorf("status = %q, want %q", after.Status, rag.StateFailed)
	}
}

func TestIndexer_QueryUnknownRepository(t *testing.T) {
	f := newFixture(t)
	_, err := f.ix.Query(context.Background(), rag.QueryRequest{Query: "x", RepositoryID: "nope"})
	if !ragerr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	RegisterRoutes(r, f.ix)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			json.NewEncoder(&buf).Encode(body)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
		return rec
	}

	rec := do(http.MethodPost, "/api/repositories/", map[string]string{"url": "https://github.com/acme/widget"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body)
	}
	var repo Repository
	json.NewDecoder(rec.Body).Decode(&repo)
	if repo.Status != rag.StateIndexed {
		t.Errorf("created repo status = %s", repo.Status)
	}

	rec = do(http.MethodGet, "/api/repositories/", nil)
	var list []Repository
	json.NewDecoder(rec.Body).Decode(&list)
	if rec.Code != http.StatusOK || len(list) != 1 {
		t.Errorf("list: %d %v", rec.Code, list)
	}

	rec = do(http.MethodPost, "/api/repositories/"+repo.ID+"/query", map[string]any{"query": "main function"})
	var qr struct {
		Sources []rag.Source `json:"sources"`
	}
	json.NewDecoder(rec.Body).Decode(&qr)
	if rec.Code != http.StatusOK || len(qr.Sources) == 0 {
		t.Errorf("query: %d %v", rec.Code, qr)
	}

	rec = do(http.MethodPost, "/api/repositories/"+repo.ID+"/query", map[string]any{"query": " "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank query status = %d", rec.Code)
	}

	if rec = do(http.MethodGet, "/api/repositories/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing repo status = %d", rec.Code)
	}

	if rec = do(http.MethodDelete, "/api/repositories/"+repo.ID, nil); rec.Code != http.StatusOK {
		t.Errorf("delete status = %d: %s", rec.Code, rec.Body)
	}
	if rec = do(http.MethodPost, "/api/repositories/", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d", rec.Code)
	}
	if rec = do(http.MethodPost, "/api/repositories/", map[string]string{"url": "--upload-pack=id"}); rec.Code != http.StatusBadRequest {
		t.Errorf("option-like URL status = %d", rec.Code)
	}
}
