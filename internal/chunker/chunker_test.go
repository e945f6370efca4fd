package chunker

import (
	"strings"
	"testing"

	"github.com/hyperjump/semdup/internal/models"
)

func TestBlockChunker_Chunk(t *testing.T) {
	c := NewBlockChunker(2, 10)
	text := "function a() {\n  return 1\n}\n\n// lone comment\n\nfunction b() {\n  return 2\n}\n"
	chunks, err := c.Chunk("x.js", text)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	first, second := chunks[0], chunks[1]
	if first.StartLine != 1 || first.EndLine != 3 {
		t.Errorf("first chunk lines %d-%d, want 1-3", first.StartLine, first.EndLine)
	}
	if second.StartLine != 7 || second.EndLine != 9 {
		t.Errorf("second chunk lines %d-%d, want 7-9", second.StartLine, second.EndLine)
	}
	if first.Name != "a" || first.Kind != models.KindFunction {
		t.Errorf("first chunk name=%q kind=%q", first.Name, first.Kind)
	}
	if first.Content != "function a() {\n  return 1\n}" {
		t.Errorf("first chunk content=%q", first.Content)
	}
}

func TestBlockChunker_splitsLongBlocks(t *testing.T) {
	c := NewBlockChunker(2, 4)
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "line"
	}
	chunks, _ := c.Chunk("x", strings.Join(lines, "\n"))
	// windows 1-4, 5-8, 9-10
	if len(chunks) != 3 {
		t.Fatalf("expected 3 windows, got %+v", chunks)
	}
	if chunks[2].StartLine != 9 || chunks[2].EndLine != 10 {
		t.Errorf("last window %d-%d", chunks[2].StartLine, chunks[2].EndLine)
	}
}

func TestBlockChunker_CRLFAndEmpty(t *testing.T) {
	c := NewBlockChunker(1, 0)
	chunks, _ := c.Chunk("x", "a\r\nb\r\n")
	if len(chunks) != 1 || chunks[0].Content != "a\nb" {
		t.Errorf("CRLF chunks = %+v", chunks)
	}
	if chunks, _ := c.Chunk("x", ""); len(chunks) != 0 {
		t.Errorf("empty input produced %+v", chunks)
	}
}

func TestBlockName(t *testing.T) {
	if got := blockName("  export   const  Foo = () => {"); got != "export const Foo = () => {" {
		t.Errorf("blockName = %q", got)
	}
	if got := blockName(strings.Repeat("x", 100)); len(got) != maxNameLen {
		t.Errorf("blockName length = %d", len(got))
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		lines []string
		kind  models.ChunkKind
		name  string
	}{
		{[]string{"export default function Button({ label }) {"}, models.KindComponent, "Button"},
		{[]string{"export const useToggle = (initial = false) => {"}, models.KindHook, "useToggle"},
		{[]string{"const formatDate = async (d: Date): Promise<string> => {"}, models.KindFunction, "formatDate"},
		{[]string{"export const Card = React.memo(function Card(props) {"}, models.KindComponent, "Card"},
		{[]string{"/**", " * Renders a table.", " */", "function DataTable() {"}, models.KindComponent, "DataTable"},
		{[]string{"@Injectable()", "export class UserService {"}, models.KindClass, "UserService"},
		{[]string{"func (s *Server) handleHealth(w http.ResponseWriter) {"}, models.KindFunction, "handleHealth"},
		{[]string{"def parse_args(argv):"}, models.KindFunction, "parse_args"},
		{[]string{"const MAX = 10;", "const MIN = 1;"}, models.KindOther, "const MAX = 10;"},
		{[]string{"// only a comment"}, models.KindOther, "// only a comment"},
		{nil, models.KindOther, ""},
	}
	for _, tt := range tests {
		kind, name := describe(tt.lines)
		if kind != tt.kind || name != tt.name {
			t.Errorf("describe(%q) = %s %q, want %s %q", tt.lines, kind, name, tt.kind, tt.name)
		}
	}
}

func TestFunctionKind(t *testing.T) {
	tests := map[string]models.ChunkKind{
		"useState": models.KindHook,
		"user":     models.KindFunction,
		"use":      models.KindFunction,
		"Modal":    models.KindComponent,
		"_private": models.KindFunction,
	}
	for name, want := range tests {
		if got := functionKind(name); got != want {
			t.Errorf("functionKind(%q) = %s, want %s", name, got, want)
		}
	}
}
