package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/reposlice/reposlice/internal/lang"
	"github.com/reposlice/reposlice/internal/model"
)

// extractEdges resolves every call site in one function. Arguments and the
// output value are extracted first because signature matching needs them;
// resolution then records either user-function edges or a deduplicated API
// edge in the model's guarded maps.
func (a *Analyzer) extractEdges(f *model.Function) {
	content, ok := a.pm.FileContent(f.File)
	if !ok {
		return
	}
	source := []byte(content)

	for _, node := range nodesOfType(f.Node, "call_expression") {
		callee := calleeName(node, source)
		f.AddCallSite(node, callee, f.RelLine(startLine(node)), f.RelLine(endLine(node)))
	}

	for _, cs := range f.CallSites() {
		a.extractArguments(f, cs, source)
		a.extractReceiverArguments(f, cs)
		a.extractOutputValue(f, cs, source)

		calleeIDs := a.resolveCallees(f, cs)
		if len(calleeIDs) > 0 {
			f.MarkFunctionCallSite(cs.ID)
			for _, calleeID := range calleeIDs {
				a.pm.AddCallEdge(f.ID, cs.ID, calleeID)
			}
			continue
		}

		f.MarkAPICallSite(cs.ID)
		apiID := a.pm.EnsureAPI(cs.Callee, len(f.Args(cs.ID)))
		a.pm.AddAPIEdge(f.ID, cs.ID, apiID)
	}
}

// calleeName extracts the textual callee name at a call site, stripping
// everything up to and including a member-access operator for method calls
// through "." or "->".
func calleeName(call *sitter.Node, source []byte) string {
	if call.ChildCount() == 0 {
		return ""
	}
	fn := call.Child(0)
	if fn.Type() == "identifier" {
		return lang.NodeText(fn, source)
	}

	var texts []string
	for i := 0; i < int(fn.ChildCount()); i++ {
		texts = append(texts, lang.NodeText(fn.Child(i), source))
	}
	if len(texts) == 0 {
		return lang.NodeText(fn, source)
	}

	last := -1
	for i, t := range texts {
		if t == "." || t == "->" {
			last = i
		}
	}
	if last+1 < len(texts) {
		return texts[last+1]
	}
	return texts[len(texts)-1]
}

// extractArguments records each top-level argument expression of the call,
// indexed by position. Nested calls inside an argument stay part of that
// argument's text.
func (a *Analyzer) extractArguments(f *model.Function, cs model.CallSite, source []byte) {
	var argList *sitter.Node
	for i := 0; i < int(cs.Node.ChildCount()); i++ {
		if cs.Node.Child(i).Type() == "argument_list" {
			argList = cs.Node.Child(i)
			break
		}
	}
	if argList == nil {
		return
	}

	idx := 0
	for i := 0; i < int(argList.ChildCount()); i++ {
		arg := argList.Child(i)
		switch arg.Type() {
		case "(", ")", ",":
			continue
		}
		line := startLine(arg)
		f.AddArg(cs.ID, model.Value{
			Name:         lang.NodeText(arg, source),
			Label:        model.LabelArg,
			File:         f.File,
			Line:         line,
			FunctionID:   f.ID,
			FunctionName: f.Name,
			FuncLine:     f.RelLine(line),
			Index:        idx,
		})
		idx++
	}
}

// extractReceiverArguments is the language hook for receiver/object
// arguments. C and C++ free calls carry none, so this is a no-op.
func (a *Analyzer) extractReceiverArguments(_ *model.Function, _ model.CallSite) {
}

// extractOutputValue records the call expression itself as the single
// output value of the call site. The index is the -1 sentinel.
func (a *Analyzer) extractOutputValue(f *model.Function, cs model.CallSite, source []byte) {
	line := startLine(cs.Node)
	f.AddOutval(cs.ID, model.Value{
		Name:         lang.NodeText(cs.Node, source),
		Label:        model.LabelOut,
		File:         f.File,
		Line:         line,
		FunctionID:   f.ID,
		FunctionName: f.Name,
		FuncLine:     f.RelLine(line),
		Index:        -1,
	})
}

// resolveCallees returns the ids of user functions the call site can bind
// to: the overload set under the callee name, filtered by receiver-shape
// compatibility and then by arity (exact for fixed-arity candidates, "fixed
// arity <= argument count" for variadic ones). Name+arity matching is a
// pragmatic approximation of overload resolution; ambiguous overloads can
// produce false positives or negatives.
func (a *Analyzer) resolveCallees(f *model.Function, cs model.CallSite) []int {
	args := f.Args(cs.ID)
	receiverArgs := f.ArgsByLabel(cs.ID, model.LabelObjArg)

	var out []int
	for _, id := range a.pm.FunctionIDsByName(cs.Callee) {
		callee, ok := a.pm.Function(id)
		if !ok {
			continue
		}

		receiverParas := callee.ParasByLabel(model.LabelObjPara)
		if (len(receiverArgs) == 0) != (len(receiverParas) == 0) {
			continue
		}

		fixed := callee.ParasByLabel(model.LabelPara)
		variadic := callee.ParasByLabel(model.LabelVariPara)
		if len(variadic) == 0 {
			if len(fixed) == len(args) {
				out = append(out, id)
			}
		} else if len(fixed) <= len(args) {
			out = append(out, id)
		}
	}
	return out
}
