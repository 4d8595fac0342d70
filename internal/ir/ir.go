// Package ir holds the program model: the shared, thread-safe store of all
// analysis artifacts. It owns the function and API registries, the raw
// per-file syntax records, the file-content cache, and the four call-graph
// maps, and answers the caller/callee and control-flow queries the slice
// driver needs.
package ir

import (
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/reposlice/reposlice/internal/model"
)

// RawFunction is the boundary record produced by the per-file parsing pass,
// before function metadata is extracted.
type RawFunction struct {
	Node      *sitter.Node
	Name      string
	StartLine int
	EndLine   int
}

// CallRef identifies one edge endpoint in a reverse call-graph map:
// the call site (local to the caller) and the caller function.
type CallRef struct {
	CallSiteID int
	CallerID   int
}

// ProgramModel is built once per analysis run. The registries are populated
// during the parallel parsing phases under the registry lock; the four
// call-graph maps and the API registry are populated concurrently by
// per-function edge-extraction tasks, each structure behind its own mutex.
// After construction the model is frozen and only read.
type ProgramModel struct {
	mu           sync.Mutex // guards the registries below
	files        map[string]string
	trees        map[string]*sitter.Tree
	rawFunctions map[int]RawFunction
	funcToFile   map[int]string
	nameToIDs    map[string]map[int]struct{}
	globals      map[string]string

	functions map[int]*model.Function // written only at phase join points

	apisMu sync.Mutex
	apis   map[int]model.API

	callEdgesMu sync.Mutex
	callEdges   map[int]map[int]map[int]struct{} // caller -> call site -> callee ids

	revCallEdgesMu sync.Mutex
	revCallEdges   map[int]map[CallRef]struct{} // callee -> {(call site, caller)}

	apiEdgesMu sync.Mutex
	apiEdges   map[int]map[int]map[int]struct{} // caller -> call site -> api ids

	revAPIEdgesMu sync.Mutex
	revAPIEdges   map[int]map[CallRef]struct{} // api -> {(call site, caller)}
}

// NewProgramModel returns an empty model.
func NewProgramModel() *ProgramModel {
	return &ProgramModel{
		files:        make(map[string]string),
		trees:        make(map[string]*sitter.Tree),
		rawFunctions: make(map[int]RawFunction),
		funcToFile:   make(map[int]string),
		nameToIDs:    make(map[string]map[int]struct{}),
		globals:      make(map[string]string),
		functions:    make(map[int]*model.Function),
		apis:         make(map[int]model.API),
		callEdges:    make(map[int]map[int]map[int]struct{}),
		revCallEdges: make(map[int]map[CallRef]struct{}),
		apiEdges:     make(map[int]map[int]map[int]struct{}),
		revAPIEdges:  make(map[int]map[CallRef]struct{}),
	}
}

// RegisterFile caches a parsed file's content and syntax tree.
func (pm *ProgramModel) RegisterFile(path, content string, tree *sitter.Tree) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.files[path] = content
	pm.trees[path] = tree
}

// FileContent returns the cached content of a source file.
func (pm *ProgramModel) FileContent(path string) (string, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	c, ok := pm.files[path]
	return c, ok
}

// RegisterRawFunction records a function boundary under a fresh id and
// indexes its name for overload-set lookups. Function ids are 1-based.
func (pm *ProgramModel) RegisterRawFunction(raw RawFunction, file string) int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	id := len(pm.rawFunctions) + 1
	pm.rawFunctions[id] = raw
	pm.funcToFile[id] = file
	ids, ok := pm.nameToIDs[raw.Name]
	if !ok {
		ids = make(map[int]struct{})
		pm.nameToIDs[raw.Name] = ids
	}
	ids[id] = struct{}{}
	return id
}

// RegisterGlobal records an object-like macro or global definition.
func (pm *ProgramModel) RegisterGlobal(name, definition string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.globals[name] = definition
}

// Global returns the definition registered under name.
func (pm *ProgramModel) Global(name string) (string, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	def, ok := pm.globals[name]
	return def, ok
}

// RawFunctions returns the raw boundary records keyed by function id.
func (pm *ProgramModel) RawFunctions() map[int]RawFunction {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make(map[int]RawFunction, len(pm.rawFunctions))
	for id, raw := range pm.rawFunctions {
		out[id] = raw
	}
	return out
}

// FileOf returns the path of the file defining the function.
func (pm *ProgramModel) FileOf(funcID int) (string, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	f, ok := pm.funcToFile[funcID]
	return f, ok
}

// SetFunction installs an analyzed function. Called only from phase
// join points, never from concurrent tasks.
func (pm *ProgramModel) SetFunction(f *model.Function) {
	pm.functions[f.ID] = f
}

// Function returns the analyzed function with the given id.
func (pm *ProgramModel) Function(id int) (*model.Function, bool) {
	f, ok := pm.functions[id]
	return f, ok
}

// Functions returns all analyzed functions ordered by id.
func (pm *ProgramModel) Functions() []*model.Function {
	out := make([]*model.Function, 0, len(pm.functions))
	for _, f := range pm.functions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FunctionIDsByName returns the overload set registered under name, sorted.
func (pm *ProgramModel) FunctionIDsByName(name string) []int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	ids := make([]int, 0, len(pm.nameToIDs[name]))
	for id := range pm.nameToIDs[name] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// EnsureAPI returns the id of the API with the given name and parameter
// count, minting a new one if no equal entry exists. The registry lock is
// held across the search and the insert so the check-and-insert is atomic.
func (pm *ProgramModel) EnsureAPI(name string, paraCount int) int {
	pm.apisMu.Lock()
	defer pm.apisMu.Unlock()
	want := model.Signature{Name: name, ParaCount: paraCount}
	for id, api := range pm.apis {
		if api.Signature() == want {
			return id
		}
	}
	id := len(pm.apis) + 1
	pm.apis[id] = model.API{ID: id, Name: name, ParaCount: paraCount}
	return id
}

// API returns the API registered under id.
func (pm *ProgramModel) API(id int) (model.API, bool) {
	pm.apisMu.Lock()
	defer pm.apisMu.Unlock()
	a, ok := pm.apis[id]
	return a, ok
}

// AddCallEdge records a user-function edge in both the forward and the
// reverse map. Each map is guarded by its own mutex.
func (pm *ProgramModel) AddCallEdge(callerID, callSiteID, calleeID int) {
	pm.callEdgesMu.Lock()
	sites, ok := pm.callEdges[callerID]
	if !ok {
		sites = make(map[int]map[int]struct{})
		pm.callEdges[callerID] = sites
	}
	callees, ok := sites[callSiteID]
	if !ok {
		callees = make(map[int]struct{})
		sites[callSiteID] = callees
	}
	callees[calleeID] = struct{}{}
	pm.callEdgesMu.Unlock()

	pm.revCallEdgesMu.Lock()
	refs, ok := pm.revCallEdges[calleeID]
	if !ok {
		refs = make(map[CallRef]struct{})
		pm.revCallEdges[calleeID] = refs
	}
	refs[CallRef{CallSiteID: callSiteID, CallerID: callerID}] = struct{}{}
	pm.revCallEdgesMu.Unlock()
}

// AddAPIEdge records a library-API edge in both API maps.
func (pm *ProgramModel) AddAPIEdge(callerID, callSiteID, apiID int) {
	pm.apiEdgesMu.Lock()
	sites, ok := pm.apiEdges[callerID]
	if !ok {
		sites = make(map[int]map[int]struct{})
		pm.apiEdges[callerID] = sites
	}
	apis, ok := sites[callSiteID]
	if !ok {
		apis = make(map[int]struct{})
		sites[callSiteID] = apis
	}
	apis[apiID] = struct{}{}
	pm.apiEdgesMu.Unlock()

	pm.revAPIEdgesMu.Lock()
	refs, ok := pm.revAPIEdges[apiID]
	if !ok {
		refs = make(map[CallRef]struct{})
		pm.revAPIEdges[apiID] = refs
	}
	refs[CallRef{CallSiteID: callSiteID, CallerID: callerID}] = struct{}{}
	pm.revAPIEdgesMu.Unlock()
}

// CallerRefs returns the (call site, caller) pairs that invoke the function.
func (pm *ProgramModel) CallerRefs(funcID int) []CallRef {
	pm.revCallEdgesMu.Lock()
	defer pm.revCallEdgesMu.Unlock()
	out := make([]CallRef, 0, len(pm.revCallEdges[funcID]))
	for ref := range pm.revCallEdges[funcID] {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CallerID != out[j].CallerID {
			return out[i].CallerID < out[j].CallerID
		}
		return out[i].CallSiteID < out[j].CallSiteID
	})
	return out
}

// Callers returns the distinct functions that call the given function.
func (pm *ProgramModel) Callers(funcID int) []*model.Function {
	seen := make(map[int]struct{})
	var out []*model.Function
	for _, ref := range pm.CallerRefs(funcID) {
		if _, dup := seen[ref.CallerID]; dup {
			continue
		}
		seen[ref.CallerID] = struct{}{}
		if f, ok := pm.functions[ref.CallerID]; ok {
			out = append(out, f)
		}
	}
	return out
}

// CalleesAt returns the functions resolved at one call site of the caller.
func (pm *ProgramModel) CalleesAt(callerID, callSiteID int) []*model.Function {
	pm.callEdgesMu.Lock()
	var ids []int
	for id := range pm.callEdges[callerID][callSiteID] {
		ids = append(ids, id)
	}
	pm.callEdgesMu.Unlock()

	sort.Ints(ids)
	var out []*model.Function
	for _, id := range ids {
		if f, ok := pm.functions[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Callees returns the distinct functions called by the given function.
func (pm *ProgramModel) Callees(funcID int) []*model.Function {
	pm.callEdgesMu.Lock()
	idSet := make(map[int]struct{})
	for _, callees := range pm.callEdges[funcID] {
		for id := range callees {
			idSet[id] = struct{}{}
		}
	}
	pm.callEdgesMu.Unlock()

	ids := make([]int, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []*model.Function
	for _, id := range ids {
		if f, ok := pm.functions[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

// CalleeAPIs returns the distinct APIs called by the given function.
func (pm *ProgramModel) CalleeAPIs(funcID int) []model.API {
	pm.apiEdgesMu.Lock()
	idSet := make(map[int]struct{})
	for _, apis := range pm.apiEdges[funcID] {
		for id := range apis {
			idSet[id] = struct{}{}
		}
	}
	pm.apiEdgesMu.Unlock()

	ids := make([]int, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	pm.apisMu.Lock()
	defer pm.apisMu.Unlock()
	var out []model.API
	for _, id := range ids {
		if a, ok := pm.apis[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// TransitiveCallers returns all direct and indirect callers of the function
// up to maxDepth hops. The traversal is iterative with an explicit visited
// set, so cyclic call graphs cannot grow the stack.
func (pm *ProgramModel) TransitiveCallers(funcID, maxDepth int) []*model.Function {
	return pm.transitive(funcID, maxDepth, func(id int) []int {
		var next []int
		for _, ref := range pm.CallerRefs(id) {
			next = append(next, ref.CallerID)
		}
		return next
	})
}

// TransitiveCallees returns all functions directly or indirectly called by
// the function up to maxDepth hops.
func (pm *ProgramModel) TransitiveCallees(funcID, maxDepth int) []*model.Function {
	return pm.transitive(funcID, maxDepth, func(id int) []int {
		var next []int
		for _, f := range pm.Callees(id) {
			next = append(next, f.ID)
		}
		return next
	})
}

func (pm *ProgramModel) transitive(funcID, maxDepth int, neighbors func(int) []int) []*model.Function {
	type item struct {
		id    int
		depth int
	}
	visited := map[int]struct{}{funcID: {}}
	queue := []item{{id: funcID, depth: 0}}
	var ids []int

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth == maxDepth {
			continue
		}
		for _, next := range neighbors(cur.id) {
			if _, dup := visited[next]; dup {
				continue
			}
			visited[next] = struct{}{}
			ids = append(ids, next)
			queue = append(queue, item{id: next, depth: cur.depth + 1})
		}
	}

	sort.Ints(ids)
	var out []*model.Function
	for _, id := range ids {
		if f, ok := pm.functions[id]; ok {
			out = append(out, f)
		}
	}
	return out
}
