// Package slicer implements the interprocedural slice driver: a worklist of
// (function, seed) queries expanded across call-graph edges up to a call-depth
// budget. Each query is answered by the intra-procedural oracle; queries the
// oracle cannot answer are dropped, so the result under-approximates rather
// than guesses.
package slicer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/reposlice/reposlice/internal/ir"
	"github.com/reposlice/reposlice/internal/model"
	"github.com/reposlice/reposlice/internal/oracle"
	"github.com/reposlice/reposlice/internal/request"
)

// Oracle answers one intra-procedural slicing query. ok is false when the
// retry budget ran out without a well-formed answer.
type Oracle interface {
	Slice(ctx context.Context, in *oracle.SliceInput) (*oracle.SliceOutput, bool)
}

// Driver walks the call graph outward from the seed function. callDepth is
// the interprocedural hop budget: 0 confines the slice to the seed function.
type Driver struct {
	pm        *ir.ProgramModel
	oracle    Oracle
	callDepth int
}

// New returns a driver over a frozen program model.
func New(pm *ir.ProgramModel, o Oracle, callDepth int) *Driver {
	if callDepth < 0 {
		callDepth = 0
	}
	return &Driver{pm: pm, oracle: o, callDepth: callDepth}
}

type workItem struct {
	fn    *model.Function
	seed  model.Value
	depth int
}

// Run resolves the seed, drains the worklist and returns the merged report.
// A seed that no analyzed function contains yields an empty report; a seed
// contained by more than one function is an error.
func (d *Driver) Run(ctx context.Context, req *request.SliceRequest) (*request.Report, error) {
	report := request.NewReport(req.RequestID)

	fn, err := d.seedFunction(req)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		log.Warnf("slicer: no function contains %s:%d, nothing to slice", req.FilePath, req.SeedLine)
		return report, nil
	}

	seed := model.NewValue(req.SeedName, model.LabelSrc, fn.File, req.SeedLine)
	seed.FunctionID = fn.ID
	seed.FunctionName = fn.Name
	seed.FuncLine = fn.RelLine(req.SeedLine)
	log.Infof("slicer: seed %s in %s", seed.Description(), fn)

	visited := make(map[model.Value]struct{})
	queue := []workItem{{fn: fn, seed: seed, depth: d.callDepth}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if _, dup := visited[item.seed]; dup {
			continue
		}
		visited[item.seed] = struct{}{}

		in, err := oracle.NewSliceInput(item.fn, []model.Value{item.seed}, req.Backward)
		if err != nil {
			log.Warnf("slicer: skipping seed %s: %v", item.seed.Description(), err)
			continue
		}
		out, ok := d.oracle.Slice(ctx, in)
		if !ok {
			log.Warnf("slicer: no answer for %s in %s, dropping this branch",
				item.seed.Description(), item.fn.Name)
			continue
		}
		report.Merge(item.fn.Name, validLines(item.fn, out.Lines))

		if item.depth == 0 {
			continue
		}
		for _, ext := range out.ExtValues {
			queue = append(queue, d.expand(item.fn, ext, req.Backward, item.depth-1)...)
		}
	}
	return report, nil
}

// expand turns one external-value descriptor into the next worklist items.
// Only the descriptor kinds that match the direction cross the boundary.
func (d *Driver) expand(fn *model.Function, ext oracle.ExtValue, backward bool, depth int) []workItem {
	switch {
	case backward && ext.Kind == oracle.ExtParameter:
		return d.expandParameter(fn, ext, depth)
	case backward && ext.Kind == oracle.ExtOutputValue:
		return d.expandOutputValue(fn, ext, depth)
	case !backward && ext.Kind == oracle.ExtArgument:
		return d.expandArgument(fn, ext, depth)
	case !backward && ext.Kind == oracle.ExtReturnValue:
		return d.expandReturnValue(fn, ext, depth)
	}
	log.Debugf("slicer: descriptor %q does not cross the boundary in this direction", ext.Kind)
	return nil
}

// expandParameter maps a parameter of fn back to the matching argument at
// every call site that invokes fn.
func (d *Driver) expandParameter(fn *model.Function, ext oracle.ExtValue, depth int) []workItem {
	var items []workItem
	for _, ref := range d.pm.CallerRefs(fn.ID) {
		caller, ok := d.pm.Function(ref.CallerID)
		if !ok {
			continue
		}
		for _, arg := range caller.ArgsAtIndex(ref.CallSiteID, ext.Index) {
			items = append(items, workItem{fn: caller, seed: arg, depth: depth})
		}
	}
	return items
}

// expandOutputValue maps the result of a call inside fn to the return values
// of every function the call site resolves to.
func (d *Driver) expandOutputValue(fn *model.Function, ext oracle.ExtValue, depth int) []workItem {
	var items []workItem
	for _, cs := range fn.CallSitesByCalleeAt(ext.Callee, ext.Line) {
		for _, callee := range d.pm.CalleesAt(fn.ID, cs.ID) {
			for _, rv := range callee.Retvals() {
				items = append(items, workItem{fn: callee, seed: rv, depth: depth})
			}
		}
	}
	return items
}

// expandArgument maps an argument of a call inside fn to the positional
// parameter of every function the call site resolves to.
func (d *Driver) expandArgument(fn *model.Function, ext oracle.ExtValue, depth int) []workItem {
	var items []workItem
	for _, cs := range fn.CallSitesByCalleeAt(ext.Callee, ext.Line) {
		for _, callee := range d.pm.CalleesAt(fn.ID, cs.ID) {
			for _, para := range callee.ParaAt(ext.Index) {
				items = append(items, workItem{fn: callee, seed: para, depth: depth})
			}
		}
	}
	return items
}

// expandReturnValue maps fn's return value to the output value recorded at
// every call site that invokes fn.
func (d *Driver) expandReturnValue(fn *model.Function, _ oracle.ExtValue, depth int) []workItem {
	var items []workItem
	for _, ref := range d.pm.CallerRefs(fn.ID) {
		caller, ok := d.pm.Function(ref.CallerID)
		if !ok {
			continue
		}
		outv, ok := caller.Outval(ref.CallSiteID)
		if !ok {
			continue
		}
		items = append(items, workItem{fn: caller, seed: outv, depth: depth})
	}
	return items
}

// seedFunction finds the unique analyzed function whose span contains the
// request's (file, line).
func (d *Driver) seedFunction(req *request.SliceRequest) (*model.Function, error) {
	var matches []*model.Function
	for _, f := range d.pm.Functions() {
		if !samePath(f.File, req.FilePath) {
			continue
		}
		if f.StartLine <= req.SeedLine && req.SeedLine <= f.EndLine {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, f := range matches {
		names[i] = f.Name
	}
	return nil, fmt.Errorf("slicer: %s:%d is inside %d functions (%s)",
		req.FilePath, req.SeedLine, len(matches), strings.Join(names, ", "))
}

func samePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasSuffix(a, sep+b) || strings.HasSuffix(b, sep+a)
}

// validLines drops oracle-reported line numbers that fall outside the
// function's relative span. Report lines stay function-relative.
func validLines(f *model.Function, rel []int) []int {
	last := f.EndLine - f.StartLine + 1
	var out []int
	for _, n := range rel {
		if n < 1 || n > last {
			continue
		}
		out = append(out, n)
	}
	return out
}
