package indexer

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/semdup/internal/chunker"
	"github.com/hyperjump/semdup/internal/embedding"
	"github.com/hyperjump/semdup/internal/models"
	"github.com/hyperjump/semdup/internal/storage"
	"github.com/hyperjump/semdup/internal/vector"
)

const counterHook = `export function useCounter(initial) {
  const [count, setCount] = useState(initial)
  return [count, () => setCount(count + 1)]
}`

const priceHelper = `export function formatPrice(amount) {
  const fixed = amount.toFixed(2)
  return "$" + fixed
}`

const httpClient = `export class HttpClient {
  constructor(baseUrl) { this.baseUrl = baseUrl }
  get(path) { return fetch(this.baseUrl + path) }
}`

type fixture struct {
	root   string
	layout storage.Layout
	idx    *Indexer
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newIndexer(t *testing.T, layout storage.Layout, dims int, opts ...IndexerOption) *Indexer {
	t.Helper()
	idx, err := NewIndexer(layout, embedding.NewMockEmbedder(dims), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func newFixture(t *testing.T, opts ...IndexerOption) *fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "src")
	writeFile(t, filepath.Join(root, "a.ts"), counterHook+"\n\n"+priceHelper+"\n")
	writeFile(t, filepath.Join(root, "b.ts"), counterHook+"\n")
	writeFile(t, filepath.Join(root, "c.ts"), httpClient+"\n")
	layout, err := storage.NewLayout(filepath.Join(base, "store"))
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{root: root, layout: layout, idx: newIndexer(t, layout, 32, opts...)}
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.root, name)
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	r, err := f.idx.Run(context.Background(), f.root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return r
}

func TestRun_Incremental(t *testing.T) {
	f := newFixture(t)

	r := f.run(t)
	if r.RunID == "" {
		t.Error("report should carry a run id")
	}
	if r.Added != 3 || r.Modified != 0 || r.Deleted != 0 || r.Unchanged != 0 {
		t.Errorf("first pass = %+v", r)
	}
	if r.ChunksWritten != 4 {
		t.Errorf("ChunksWritten = %d, want 4", r.ChunksWritten)
	}
	if !f.layout.Exists() {
		t.Error("first pass should save the stores")
	}

	r = f.run(t)
	if r.Changed() || r.Unchanged != 3 || r.ChunksWritten != 0 {
		t.Errorf("second pass should be a no-op: %+v", r)
	}

	writeFile(t, f.path("b.ts"), priceHelper+"\n")
	r = f.run(t)
	if r.Modified != 1 || r.Unchanged != 2 || r.ChunksWritten != 1 || r.ChunksRemoved != 1 {
		t.Errorf("after edit = %+v", r)
	}
	got := f.idx.ChunksInFile(f.path("b.ts"))
	if len(got) != 1 || got[0].Metadata.Name != "formatPrice" {
		t.Errorf("b.ts chunks = %+v", got)
	}

	if err := os.Remove(f.path("a.ts")); err != nil {
		t.Fatal(err)
	}
	r = f.run(t)
	if r.Deleted != 1 || r.ChunksRemoved != 2 {
		t.Errorf("after delete = %+v", r)
	}
	if got := f.idx.ChunksInFile(f.path("a.ts")); len(got) != 0 {
		t.Errorf("deleted file still has chunks: %v", got)
	}
	st, err := f.idx.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.TrackedFiles != 2 || st.Chunks != 2 || st.Vectors != 2 || st.Dimension != 32 {
		t.Errorf("status = %+v", st)
	}
	if st.DiskBytes <= 0 {
		t.Error("disk usage should be positive after saving")
	}
}

func TestRun_SaveLoad(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	before, _ := f.idx.Status()

	loaded := newIndexer(t, f.layout, 32)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	after, _ := loaded.Status()
	if after != before {
		t.Errorf("status after load = %+v, want %+v", after, before)
	}
	recs, err := loaded.FindByName("formatPrise", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) == 0 || recs[0].Metadata.Name != "formatPrice" {
		t.Errorf("name index not rebuilt on load: %v", recs)
	}
	r, err := loaded.Run(context.Background(), f.root)
	if err != nil {
		t.Fatal(err)
	}
	if r.Changed() {
		t.Errorf("pass after load should find nothing to do: %+v", r)
	}
}

func TestSimilarTo(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	a := f.idx.ChunksInFile(f.path("a.ts"))
	if len(a) != 2 {
		t.Fatalf("a.ts chunks = %v", a)
	}
	hook := a[0]
	if hook.Metadata.Kind != models.KindHook || hook.Metadata.StartLine != 1 || hook.Metadata.EndLine != 4 {
		t.Errorf("hook chunk = %+v", hook)
	}

	matches, err := f.idx.SimilarTo(context.Background(), hook.ID, 5, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %+v, want only the copy in b.ts", matches)
	}
	m := matches[0]
	if m.Rank != 1 || m.Metadata == nil || m.Metadata.FilePath != f.path("b.ts") {
		t.Errorf("match = %+v", m)
	}
	if m.Score < 0.99 {
		t.Errorf("identical chunks should score ~1, got %v", m.Score)
	}

	all, err := f.idx.SimilarTo(context.Background(), hook.ID, 10, NoThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("without threshold expected 3 neighbors, got %d", len(all))
	}
	for _, m := range all {
		if m.ID == hook.ID {
			t.Error("query chunk must not appear in its own results")
		}
	}

	if _, err := f.idx.SimilarTo(context.Background(), "chunk:missing", 5, 0); !errors.Is(err, ErrUnknownChunk) {
		t.Errorf("err = %v, want ErrUnknownChunk", err)
	}
}

func TestSimilarAtAndText(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	ctx := context.Background()

	rec, matches, err := f.idx.SimilarAt(ctx, f.path("a.ts"), 7, 3, NoThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Metadata.Name != "formatPrice" {
		t.Errorf("chunk at a.ts:7 = %+v", rec)
	}
	if len(matches) != 3 {
		t.Errorf("matches = %d, want 3", len(matches))
	}
	if _, _, err := f.idx.SimilarAt(ctx, f.path("a.ts"), 5, 3, NoThreshold); !errors.Is(err, ErrUnknownChunk) {
		t.Errorf("blank line should resolve to no chunk, err = %v", err)
	}

	text, err := f.idx.SimilarText(ctx, httpClient, 1, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	if len(text) != 1 || text[0].Metadata == nil || text[0].Metadata.Name != "HttpClient" {
		t.Errorf("SimilarText = %+v", text)
	}
}

func TestExactDuplicates(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	groups := f.idx.ExactDuplicates()
	if len(groups) != 1 {
		t.Fatalf("groups = %+v", groups)
	}
	g := groups[0]
	if len(g.Chunks) != 2 || g.Chunks[0].Metadata.FilePath != f.path("a.ts") || g.Chunks[1].Metadata.FilePath != f.path("b.ts") {
		t.Errorf("group = %+v", g)
	}
}

func TestFindByName(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	recs, err := f.idx.FindByName("counter", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("substring search = %v", recs)
	}
	recs, _ = f.idx.FindByName("counter", false, 1)
	if len(recs) != 1 {
		t.Errorf("limit not applied: %v", recs)
	}
	recs, err = f.idx.FindByName("HtpClient", true, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) == 0 || recs[0].Metadata.Name != "HttpClient" {
		t.Errorf("fuzzy search = %v", recs)
	}
	if got := f.idx.ChunksByKind(models.KindClass); len(got) != 1 {
		t.Errorf("classes = %v", got)
	}
	if m, ok := f.idx.Chunk(recs[0].ID); !ok || m.Name != "HttpClient" {
		t.Errorf("Chunk(%s) = %+v, %v", recs[0].ID, m, ok)
	}
}

type failingChunker struct {
	chunker.Chunker
	fail string
}

func (c failingChunker) Chunk(path, content string) ([]chunker.Chunk, error) {
	if filepath.Base(path) == c.fail {
		return nil, errors.New("parse error")
	}
	return c.Chunker.Chunk(path, content)
}

func TestRun_FileFailureIsRetried(t *testing.T) {
	f := newFixture(t, WithChunker(failingChunker{Chunker: chunker.NewBlockChunker(0, 0), fail: "c.ts"}))
	r := f.run(t)
	if len(r.Failures) != 1 || r.Failures[0].Path != f.path("c.ts") {
		t.Fatalf("failures = %+v", r.Failures)
	}
	if r.Added != 2 || r.Unchanged != 0 {
		t.Errorf("report = %+v", r)
	}
	r = f.run(t)
	if len(r.Failures) != 1 || r.Unchanged != 2 {
		t.Errorf("failed file should be retried, report = %+v", r)
	}
}

func TestRun_NonSourceFileIsTrackedWithoutChunks(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.path("bundle.js"), "!function(){"+strings.Repeat("a();", 400)+"}()\n")
	r := f.run(t)
	if r.Added != 4 || len(r.Failures) != 0 {
		t.Fatalf("report = %+v", r)
	}
	if got := f.idx.ChunksInFile(f.path("bundle.js")); len(got) != 0 {
		t.Errorf("minified file produced chunks: %v", got)
	}
	r = f.run(t)
	if r.Changed() || r.Unchanged != 4 {
		t.Errorf("skipped file should not be retried, report = %+v", r)
	}
}

func TestRun_DimensionMismatch(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	other := newIndexer(t, f.layout, 16)
	if err := other.Load(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, f.path("d.ts"), priceHelper+"\n")
	_, err := other.Run(context.Background(), f.root)
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	st, _ := other.Status()
	if st.Chunks != 4 || st.Dimension != 32 {
		t.Errorf("failed pass should leave stores intact: %+v", st)
	}
}

// nanEmbedder returns mock embeddings with the first component replaced by NaN.
type nanEmbedder struct {
	*embedding.MockEmbedder
}

func (e nanEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.MockEmbedder.Embed(ctx, text)
	if err == nil {
		v[0] = float32(math.NaN())
	}
	return v, err
}

func (e nanEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.MockEmbedder.EmbedBatch(ctx, texts)
	for _, v := range out {
		v[0] = float32(math.NaN())
	}
	return out, err
}

func TestRun_NonFiniteEmbeddingLeavesStoresIntact(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	other, err := NewIndexer(f.layout, nanEmbedder{embedding.NewMockEmbedder(32)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = other.Close() })
	if err := other.Load(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, f.path("b.ts"), priceHelper+"\n")
	if _, err := other.Run(context.Background(), f.root); !errors.Is(err, vector.ErrNonFinite) {
		t.Fatalf("err = %v, want ErrNonFinite", err)
	}
	st, _ := other.Status()
	if st.Chunks != 4 || st.Vectors != 4 {
		t.Errorf("failed pass should leave stores intact: %+v", st)
	}
}

func TestRun_Errors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.idx.Run(context.Background(), filepath.Join(f.root, "missing")); err == nil {
		t.Error("expected error for missing root")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.idx.Run(ctx, f.root); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  a  ", "a"},
		{"if (x) {\n\t\treturn y\n}", "if (x) { return y }"},
		{"a\r\n\r\nb", "a b"},
	}
	for _, tt := range tests {
		if got := Preprocess(tt.in); got != tt.want {
			t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
