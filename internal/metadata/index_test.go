package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/semdup/internal/models"
)

func meta(path string, start, end int, kind models.ChunkKind, name, hash string) models.ChunkMetadata {
	return models.ChunkMetadata{FilePath: path, StartLine: start, EndLine: end, Kind: kind, Name: name, ContentHash: hash}
}

func testIndex(t *testing.T) *Index {
	t.Helper()
	idx := NewIndex()
	records := map[string]models.ChunkMetadata{
		"c1": meta("src/Button.tsx", 1, 10, models.KindComponent, "Button", "h1"),
		"c2": meta("src/Button.tsx", 12, 20, models.KindHook, "useButtonState", "h2"),
		"c3": meta("src/Card.tsx", 1, 30, models.KindComponent, "Card", "h1"),
		"c4": meta("src/util.ts", 5, 9, models.KindOther, "formatDate", "h3"),
	}
	for id, m := range records {
		if err := idx.Set(id, m); err != nil {
			t.Fatal(err)
		}
	}
	return idx
}

func TestIndex_SetGet(t *testing.T) {
	idx := testIndex(t)
	got, ok := idx.Get("c2")
	if !ok || got.Name != "useButtonState" {
		t.Errorf("Get(c2) = %+v, %v", got, ok)
	}
	if _, ok := idx.Get("missing"); ok {
		t.Error("Get(missing) should report not found")
	}
	if idx.Size() != 4 {
		t.Errorf("Size=%d, want 4", idx.Size())
	}
}

func TestIndex_SetOverwriteMovesSecondaryKeys(t *testing.T) {
	idx := testIndex(t)
	if err := idx.Set("c4", meta("src/date.ts", 1, 4, models.KindFunction, "formatDate", "h9")); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 4 {
		t.Errorf("overwrite changed size: %d", idx.Size())
	}
	if got := idx.GetByFilePath("src/util.ts"); len(got) != 0 {
		t.Errorf("old path still indexed: %v", got)
	}
	if _, ok := idx.GetByContentHash("h3"); ok {
		t.Error("old hash still indexed")
	}
	if r, ok := idx.GetByContentHash("h9"); !ok || r.ID != "c4" {
		t.Errorf("new hash lookup = %+v, %v", r, ok)
	}
}

func TestIndex_SetInvalidRange(t *testing.T) {
	idx := testIndex(t)
	for _, m := range []models.ChunkMetadata{
		meta("a.ts", 0, 3, models.KindOther, "x", "h"),
		meta("a.ts", 5, 4, models.KindOther, "x", "h"),
	} {
		if err := idx.Set("c1", m); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("Set(%+v) err = %v, want ErrInvalidRange", m, err)
		}
	}
	got, _ := idx.Get("c1")
	if got.Name != "Button" {
		t.Error("failed Set should leave the previous record in place")
	}
}

func TestIndex_GetByFilePathAndRemove(t *testing.T) {
	idx := NewIndex()
	for i, id := range []string{"a", "b", "c"} {
		_ = idx.Set(id, meta("same.ts", 10-3*i, 11-3*i, models.KindOther, id, id))
	}
	_ = idx.Set("other", meta("other.ts", 1, 2, models.KindOther, "o", "o"))

	got := idx.GetByFilePath("same.ts")
	if len(got) != 3 {
		t.Fatalf("GetByFilePath returned %d records, want 3", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("records should be ordered by start line: %v", got)
	}

	removed := idx.RemoveByFilePath("same.ts")
	if len(removed) != 3 {
		t.Errorf("RemoveByFilePath removed %d, want 3", len(removed))
	}
	if len(idx.GetByFilePath("same.ts")) != 0 {
		t.Error("records remain after RemoveByFilePath")
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if r := idx.RemoveByFilePath("nope.ts"); len(r) != 0 {
		t.Errorf("removing unknown path returned %v", r)
	}
}

func TestIndex_GetByContentHash(t *testing.T) {
	idx := testIndex(t)
	r, ok := idx.GetByContentHash("h1")
	if !ok || (r.ID != "c1" && r.ID != "c3") {
		t.Fatalf("GetByContentHash(h1) = %+v, %v", r, ok)
	}
	again, _ := idx.GetByContentHash("h1")
	if again.ID != r.ID {
		t.Error("repeated lookups should agree")
	}
	if _, ok := idx.GetByContentHash("nope"); ok {
		t.Error("unknown hash should report not found")
	}
}

func TestIndex_GetAtLocation(t *testing.T) {
	idx := testIndex(t)
	tests := []struct {
		path   string
		line   int
		wantID string
		found  bool
	}{
		{"src/Button.tsx", 1, "c1", true},
		{"src/Button.tsx", 10, "c1", true},
		{"src/Button.tsx", 11, "", false},
		{"src/Button.tsx", 15, "c2", true},
		{"src/Button.tsx", 20, "c2", true},
		{"src/Button.tsx", 21, "", false},
		{"src/Card.tsx", 30, "c3", true},
		{"src/missing.tsx", 1, "", false},
	}
	for _, tt := range tests {
		r, ok := idx.GetAtLocation(tt.path, tt.line)
		if ok != tt.found || r.ID != tt.wantID {
			t.Errorf("GetAtLocation(%s, %d) = %q, %v; want %q, %v", tt.path, tt.line, r.ID, ok, tt.wantID, tt.found)
		}
	}
}

func TestIndex_FilterByKind(t *testing.T) {
	idx := testIndex(t)
	comps := idx.FilterByKind(models.KindComponent)
	if len(comps) != 2 {
		t.Errorf("components = %v", comps)
	}
	if got := idx.FilterByKind(models.KindClass); len(got) != 0 {
		t.Errorf("classes = %v", got)
	}
}

func TestIndex_SearchByName(t *testing.T) {
	idx := testIndex(t)
	tests := []struct {
		query string
		want  int
	}{
		{"button", 2},
		{"BUTTON", 2},
		{"card", 1},
		{"date", 1},
		{"zzz", 0},
		{"", 4},
	}
	for _, tt := range tests {
		if got := idx.SearchByName(tt.query); len(got) != tt.want {
			t.Errorf("SearchByName(%q) returned %d, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestIndex_Entries(t *testing.T) {
	idx := testIndex(t)
	var ids []string
	for id := range idx.Entries() {
		ids = append(ids, id)
	}
	if len(ids) != 4 || ids[0] != "c1" || ids[3] != "c4" {
		t.Errorf("Entries = %v", ids)
	}
}

func TestIndex_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "metadata")
	idx := testIndex(t)
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	loaded := NewIndex()
	if err := loaded.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Size() != idx.Size() {
		t.Fatalf("loaded size=%d, want %d", loaded.Size(), idx.Size())
	}
	for id, want := range idx.Entries() {
		got, ok := loaded.Get(id)
		if !ok || got != want {
			t.Errorf("%s: got %+v, want %+v", id, got, want)
		}
	}
	if r, ok := loaded.GetAtLocation("src/Button.tsx", 15); !ok || r.ID != "c2" {
		t.Error("secondary indexes should be rebuilt on Load")
	}

	// saving again over an existing snapshot replaces it
	loaded.RemoveByFilePath("src/Button.tsx")
	if err := loaded.Save(dir); err != nil {
		t.Fatal(err)
	}
	again := NewIndex()
	if err := again.Load(dir); err != nil {
		t.Fatal(err)
	}
	if again.Size() != 2 {
		t.Errorf("after resave size=%d, want 2", again.Size())
	}
}

func TestIndex_SaveLoadUnusualDirNames(t *testing.T) {
	tests := []struct {
		name string
		dir  string
	}{
		{"hash", "C#proj"},
		{"percent escape", "pct%20"},
		{"question mark", "q?x"},
		{"space", "my project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), tt.dir, "metadata")
			idx := testIndex(t)
			if err := idx.Save(dir); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
				t.Fatalf("snapshot not written under %q: %v", dir, err)
			}
			loaded := NewIndex()
			if err := loaded.Load(dir); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if loaded.Size() != idx.Size() {
				t.Errorf("loaded size=%d, want %d", loaded.Size(), idx.Size())
			}
		})
	}
}

func TestSnapshotDSN(t *testing.T) {
	dsn, err := snapshotDSN(filepath.Join(t.TempDir(), "C#proj", "pct%20", FileName), "ro")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(dsn, "#") || strings.Contains(dsn, "%20") {
		t.Errorf("dsn %q should escape the path", dsn)
	}
	if strings.Count(dsn, "?") != 1 || !strings.HasPrefix(dsn, "file:") || !strings.HasSuffix(dsn, "?mode=ro") {
		t.Errorf("dsn = %q", dsn)
	}
}

func TestIndex_LoadMissing(t *testing.T) {
	idx := testIndex(t)
	if err := idx.Load(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("Load missing should not error: %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("Load missing should leave index empty, size=%d", idx.Size())
	}
}

func TestIndex_LoadMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("definitely not sqlite, just plain text padding it out past the header size"), 0644); err != nil {
		t.Fatal(err)
	}
	idx := testIndex(t)
	if err := idx.Load(dir); err == nil {
		t.Fatal("expected error for malformed snapshot")
	}
	if idx.Size() != 4 {
		t.Errorf("failed Load should leave index unchanged, size=%d", idx.Size())
	}
}
