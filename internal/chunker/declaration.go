package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hyperjump/semdup/internal/models"
)

var (
	functionDecl = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`)
	classDecl    = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`)
	arrowDecl    = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\(|function\b|[A-Za-z_$][\w$]*\s*=>|React\.memo\(|memo\(|forwardRef\()`)
	goFuncDecl   = regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`)
	pyDecl       = regexp.MustCompile(`^(?:async\s+)?(def|class)\s+([A-Za-z_]\w*)`)
)

// describe returns the kind and name of the declaration a block starts with, skipping
// leading comments and decorators. Blocks that do not start with a recognized
// declaration are kind "other", named after their first line.
func describe(lines []string) (models.ChunkKind, string) {
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if isPreamble(line) {
			continue
		}
		if m := functionDecl.FindStringSubmatch(line); m != nil {
			return functionKind(m[1]), m[1]
		}
		if m := arrowDecl.FindStringSubmatch(line); m != nil {
			return functionKind(m[1]), m[1]
		}
		if m := classDecl.FindStringSubmatch(line); m != nil {
			return models.KindClass, m[1]
		}
		if m := goFuncDecl.FindStringSubmatch(line); m != nil {
			return models.KindFunction, m[1]
		}
		if m := pyDecl.FindStringSubmatch(line); m != nil {
			if m[1] == "class" {
				return models.KindClass, m[2]
			}
			return models.KindFunction, m[2]
		}
		return models.KindOther, blockName(line)
	}
	if len(lines) == 0 {
		return models.KindOther, ""
	}
	return models.KindOther, blockName(lines[0])
}

func isPreamble(line string) bool {
	for _, p := range []string{"//", "/*", "*", "@", "#"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return line == ""
}

// functionKind classifies a function by naming convention: useX is a hook,
// a capitalized name is a component.
func functionKind(name string) models.ChunkKind {
	if len(name) > 3 && strings.HasPrefix(name, "use") && unicode.IsUpper(rune(name[3])) {
		return models.KindHook
	}
	if r := rune(name[0]); unicode.IsUpper(r) {
		return models.KindComponent
	}
	return models.KindFunction
}
