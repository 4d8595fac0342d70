// Package lang provides the registry of supported source languages and
// their tree-sitter grammars. A single run analyzes exactly one language.
package lang

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Language holds the tree-sitter configuration for one supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// HasExtension reports whether the file extension (including the dot)
// belongs to this language.
func (l *Language) HasExtension(ext string) bool {
	for _, e := range l.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

var languages = map[string]*Language{
	"c": {
		Name:       "c",
		Extensions: []string{".c", ".h"},
		lang:       c.GetLanguage(),
	},
	"cpp": {
		Name:       "cpp",
		Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".c", ".h"},
		lang:       cpp.GetLanguage(),
	},
}

// Get returns the language registered under name.
func Get(name string) (*Language, bool) {
	l, ok := languages[name]
	return l, ok
}

// Names returns the registered language names, sorted.
func Names() []string {
	out := make([]string, 0, len(languages))
	for name := range languages {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
