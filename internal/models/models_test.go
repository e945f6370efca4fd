package models

import "testing"

func TestParseChunkKind(t *testing.T) {
	tests := []struct {
		in   string
		want ChunkKind
	}{
		{"component", KindComponent},
		{"Hook", KindHook},
		{" function ", KindFunction},
		{"class", KindClass},
		{"other", KindOther},
		{"", KindOther},
		{"module", KindOther},
	}
	for _, tt := range tests {
		if got := ParseChunkKind(tt.in); got != tt.want {
			t.Errorf("ParseChunkKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChunkMetadata_Contains(t *testing.T) {
	m := ChunkMetadata{StartLine: 3, EndLine: 7}
	for line, want := range map[int]bool{2: false, 3: true, 5: true, 7: true, 8: false} {
		if got := m.Contains(line); got != want {
			t.Errorf("Contains(%d) = %v, want %v", line, got, want)
		}
	}
}

func TestFileEntry_Clone(t *testing.T) {
	e := FileEntry{ContentHash: "h", MtimeMs: 1, ChunkIDs: []string{"a", "b"}}
	c := e.Clone()
	c.ChunkIDs[0] = "z"
	if e.ChunkIDs[0] != "a" {
		t.Error("Clone should not share chunk id slice")
	}
	if (FileEntry{}).Clone().ChunkIDs != nil {
		t.Error("Clone of nil chunk ids should stay nil")
	}
}
