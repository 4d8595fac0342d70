// Package analyzer builds the program model from C/C++ sources. It runs
// three fan-out/fan-in phases on a bounded worker pool: per-file parsing and
// boundary extraction, per-function metadata extraction, and per-function
// call-graph edge extraction. The first two phases write only task-local
// results; the third contends on the model's call-graph maps, each behind
// its own mutex.
package analyzer

import (
	"context"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/reposlice/reposlice/internal/ir"
	"github.com/reposlice/reposlice/internal/lang"
	"github.com/reposlice/reposlice/internal/model"
)

// Analyzer drives model construction for one project and one language.
type Analyzer struct {
	language *lang.Language
	files    map[string]string // path -> content
	workers  int
	pm       *ir.ProgramModel
}

// New returns an analyzer over the given file contents.
func New(language *lang.Language, files map[string]string, workers int) *Analyzer {
	if workers < 1 {
		workers = 1
	}
	return &Analyzer{
		language: language,
		files:    files,
		workers:  workers,
		pm:       ir.NewProgramModel(),
	}
}

// Run executes the three construction phases and returns the frozen model.
func (a *Analyzer) Run(ctx context.Context) (*ir.ProgramModel, error) {
	a.parseFiles(ctx)
	a.analyzeFunctions()
	a.extractCallGraph()
	return a.pm, nil
}

// parseFiles parses every source file and extracts function/macro boundary
// records. A parse failure drops the whole file's contribution.
func (a *Analyzer) parseFiles(ctx context.Context) {
	paths := make([]string, 0, len(a.files))
	for p := range a.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	work := make(chan string, len(paths))
	var wg sync.WaitGroup

	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser.
			parser := a.language.NewParser()
			for path := range work {
				a.parseFile(ctx, parser, path)
			}
		}()
	}

	for _, p := range paths {
		work <- p
	}
	close(work)
	wg.Wait()
}

func (a *Analyzer) parseFile(ctx context.Context, parser *sitter.Parser, path string) {
	source := []byte(a.files[path])
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		log.Warnf("parsing %s: %v", path, err)
		return
	}
	a.pm.RegisterFile(path, a.files[path], tree)
	a.extractFunctionBoundaries(path, source, tree)
	a.extractGlobals(path, source, tree)
}

// analyzeFunctions extracts parameters, return values and control-flow
// scopes for every function. Tasks write only their own Function; results
// are installed at the join point by a single collector.
func (a *Analyzer) analyzeFunctions() {
	raws := a.pm.RawFunctions()
	ids := make([]int, 0, len(raws))
	for id := range raws {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	work := make(chan int, len(ids))
	results := make(chan *model.Function, len(ids))
	var wg sync.WaitGroup

	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				if f := a.buildFunction(id, raws[id]); f != nil {
					results <- f
				}
			}
		}()
	}

	for _, id := range ids {
		work <- id
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	for f := range results {
		a.pm.SetFunction(f)
	}
}

func (a *Analyzer) buildFunction(id int, raw ir.RawFunction) *model.Function {
	file, ok := a.pm.FileOf(id)
	if !ok {
		return nil
	}
	content, ok := a.pm.FileContent(file)
	if !ok {
		return nil
	}
	code := content[raw.Node.StartByte():raw.Node.EndByte()]
	f := model.NewFunction(id, raw.Name, code, raw.StartLine, raw.EndLine, raw.Node, file)

	a.extractParameters(f)
	a.extractReturnValues(f)
	a.extractIfScopes(f)
	a.extractLoopScopes(f)
	return f
}

// extractCallGraph resolves every call site to user functions or APIs and
// records the edges. Tasks run concurrently and contend only on the
// model's guarded maps.
func (a *Analyzer) extractCallGraph() {
	functions := a.pm.Functions()

	work := make(chan *model.Function, len(functions))
	var wg sync.WaitGroup

	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range work {
				a.extractEdges(f)
			}
		}()
	}

	for _, f := range functions {
		work <- f
	}
	close(work)
	wg.Wait()
}

// nodesOfType returns all nodes of the given type under root in document
// order. Iterative so deep trees cannot grow the goroutine stack.
func nodesOfType(root *sitter.Node, nodeType string) []*sitter.Node {
	if root == nil {
		return nil
	}
	var out []*sitter.Node
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type() == nodeType {
			out = append(out, n)
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	return out
}

func startLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}
