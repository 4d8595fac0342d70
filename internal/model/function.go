package model

import (
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Span is an inclusive (start, end) line range. Scope spans are
// function-relative. The zero Span is the "absent" sentinel used for
// missing else branches.
type Span struct {
	Start int
	End   int
}

// Contains reports whether line falls inside the span.
func (s Span) Contains(line int) bool {
	return s.Start <= line && line <= s.End
}

// IsZero reports whether the span is the absent sentinel.
func (s Span) IsZero() bool {
	return s.Start == 0 && s.End == 0
}

// IfScope records the line geometry of one if construct, keyed in the
// owning Function by the statement's own span.
type IfScope struct {
	Cond     Span
	CondText string
	True     Span
	Else     Span // zero if no else branch
}

// LoopScope records the line geometry of one for/while loop.
type LoopScope struct {
	Header     Span
	HeaderText string
	Body       Span
}

// CallSite is one textual invocation of a function or API inside a
// function body. Lines are function-relative.
type CallSite struct {
	ID        int
	Node      *sitter.Node
	Callee    string
	StartLine int
	EndLine   int
}

// Function is a user-defined routine (or function-like macro pseudo-function)
// with the collections derived from its syntax subtree. It is mutated only by
// the model builder during the analysis pass; afterwards it is read-only and
// all accessors return fresh copies of the stored state.
type Function struct {
	ID        int
	Name      string
	Code      string
	StartLine int // absolute, 1-based
	EndLine   int // absolute, 1-based
	File      string
	Node      *sitter.Node

	// LinedCode is the function text with 1-based relative line numbers
	// prepended, the view oracle prompts are built from.
	LinedCode string

	allCallSites  map[int]CallSite
	funcCallSites map[int]CallSite
	apiCallSites  map[int]CallSite

	paras   map[Value]struct{}
	retvals map[Value]struct{}
	args    map[int]map[Value]struct{}
	outvals map[int]Value

	ifScopes   map[Span]IfScope
	loopScopes map[Span]LoopScope
}

// NewFunction builds a Function and pre-renders its relative-line text view.
func NewFunction(id int, name, code string, startLine, endLine int, node *sitter.Node, file string) *Function {
	return &Function{
		ID:            id,
		Name:          name,
		Code:          code,
		StartLine:     startLine,
		EndLine:       endLine,
		File:          file,
		Node:          node,
		LinedCode:     attachLineNumbers(code, 1),
		allCallSites:  make(map[int]CallSite),
		funcCallSites: make(map[int]CallSite),
		apiCallSites:  make(map[int]CallSite),
		paras:         make(map[Value]struct{}),
		retvals:       make(map[Value]struct{}),
		args:          make(map[int]map[Value]struct{}),
		outvals:       make(map[int]Value),
		ifScopes:      make(map[Span]IfScope),
		loopScopes:    make(map[Span]LoopScope),
	}
}

func (f *Function) String() string {
	return fmt.Sprintf("Function %s at %s:%d", f.Name, f.File, f.StartLine)
}

// RelLine converts an absolute file line to a function-relative line.
func (f *Function) RelLine(fileLine int) int {
	return fileLine - f.StartLine + 1
}

// AbsLinedCode renders the function text with absolute file line numbers.
func (f *Function) AbsLinedCode() string {
	return attachLineNumbers(f.Code, f.StartLine)
}

func attachLineNumbers(code string, first int) string {
	var b strings.Builder
	lineNo := first
	b.WriteString(fmt.Sprintf("%d. ", lineNo))
	for _, ch := range code {
		b.WriteRune(ch)
		if ch == '\n' {
			lineNo++
			b.WriteString(fmt.Sprintf("%d. ", lineNo))
		}
	}
	return b.String()
}

// AddCallSite registers a call site under a fresh local id and returns it.
// Call-site ids are 1-based and unique within the function.
func (f *Function) AddCallSite(node *sitter.Node, callee string, startLine, endLine int) CallSite {
	cs := CallSite{
		ID:        len(f.allCallSites) + 1,
		Node:      node,
		Callee:    callee,
		StartLine: startLine,
		EndLine:   endLine,
	}
	f.allCallSites[cs.ID] = cs
	return cs
}

// MarkFunctionCallSite records that the call site resolved to one or more
// user-defined functions. The id must already be registered.
func (f *Function) MarkFunctionCallSite(id int) {
	if cs, ok := f.allCallSites[id]; ok {
		f.funcCallSites[id] = cs
	}
}

// MarkAPICallSite records that the call site resolved to a library API.
func (f *Function) MarkAPICallSite(id int) {
	if cs, ok := f.allCallSites[id]; ok {
		f.apiCallSites[id] = cs
	}
}

// CallSite returns the call site with the given id.
func (f *Function) CallSite(id int) (CallSite, bool) {
	cs, ok := f.allCallSites[id]
	return cs, ok
}

// CallSites returns all call sites ordered by id.
func (f *Function) CallSites() []CallSite {
	return sortedSites(f.allCallSites)
}

// FunctionCallSites returns the call sites resolved to user functions.
func (f *Function) FunctionCallSites() []CallSite {
	return sortedSites(f.funcCallSites)
}

// APICallSites returns the call sites resolved to library APIs.
func (f *Function) APICallSites() []CallSite {
	return sortedSites(f.apiCallSites)
}

// CallSitesByCallee returns all call sites whose callee name matches.
func (f *Function) CallSitesByCallee(callee string) []CallSite {
	var out []CallSite
	for _, cs := range sortedSites(f.allCallSites) {
		if cs.Callee == callee {
			out = append(out, cs)
		}
	}
	return out
}

// CallSitesByCalleeAt returns the call sites with the given callee name
// whose span contains the function-relative line.
func (f *Function) CallSitesByCalleeAt(callee string, line int) []CallSite {
	var out []CallSite
	for _, cs := range sortedSites(f.allCallSites) {
		if cs.Callee == callee && cs.StartLine <= line && line <= cs.EndLine {
			out = append(out, cs)
		}
	}
	return out
}

func sortedSites(m map[int]CallSite) []CallSite {
	out := make([]CallSite, 0, len(m))
	for _, cs := range m {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddPara adds a parameter value.
func (f *Function) AddPara(p Value) {
	f.paras[p] = struct{}{}
}

// Paras returns all parameters of the function.
func (f *Function) Paras() []Value {
	return sortedValues(f.paras)
}

// ParasByLabel returns the parameters with the given parameter label.
func (f *Function) ParasByLabel(label ValueLabel) []Value {
	var out []Value
	for _, p := range sortedValues(f.paras) {
		if p.Label == label {
			out = append(out, p)
		}
	}
	return out
}

// ParaAt returns the parameters at the given positional index.
func (f *Function) ParaAt(index int) []Value {
	var out []Value
	for _, p := range sortedValues(f.paras) {
		if p.Index == index {
			out = append(out, p)
		}
	}
	return out
}

// AddRetval adds a return value.
func (f *Function) AddRetval(r Value) {
	f.retvals[r] = struct{}{}
}

// Retvals returns all return values of the function.
func (f *Function) Retvals() []Value {
	return sortedValues(f.retvals)
}

// AddArg adds an argument value at a call site.
func (f *Function) AddArg(callSiteID int, arg Value) {
	set, ok := f.args[callSiteID]
	if !ok {
		set = make(map[Value]struct{})
		f.args[callSiteID] = set
	}
	set[arg] = struct{}{}
}

// Args returns all arguments at a call site.
func (f *Function) Args(callSiteID int) []Value {
	return sortedValues(f.args[callSiteID])
}

// ArgsAtIndex returns the arguments at a call site with the given
// positional index.
func (f *Function) ArgsAtIndex(callSiteID, index int) []Value {
	var out []Value
	for _, a := range sortedValues(f.args[callSiteID]) {
		if a.Index == index {
			out = append(out, a)
		}
	}
	return out
}

// ArgsByLabel returns the arguments at a call site with the given label.
func (f *Function) ArgsByLabel(callSiteID int, label ValueLabel) []Value {
	var out []Value
	for _, a := range sortedValues(f.args[callSiteID]) {
		if a.Label == label {
			out = append(out, a)
		}
	}
	return out
}

// AddOutval records the single output value at a call site.
func (f *Function) AddOutval(callSiteID int, out Value) {
	f.outvals[callSiteID] = out
}

// Outval returns the output value recorded at a call site.
func (f *Function) Outval(callSiteID int) (Value, bool) {
	v, ok := f.outvals[callSiteID]
	return v, ok
}

// AddIfScope records the geometry of one if construct keyed by its own span.
func (f *Function) AddIfScope(stmt Span, scope IfScope) {
	f.ifScopes[stmt] = scope
}

// IfScopes returns a copy of the if-scope map.
func (f *Function) IfScopes() map[Span]IfScope {
	out := make(map[Span]IfScope, len(f.ifScopes))
	for k, v := range f.ifScopes {
		out[k] = v
	}
	return out
}

// AddLoopScope records the geometry of one loop keyed by its own span.
func (f *Function) AddLoopScope(stmt Span, scope LoopScope) {
	f.loopScopes[stmt] = scope
}

// LoopScopes returns a copy of the loop-scope map.
func (f *Function) LoopScopes() map[Span]LoopScope {
	out := make(map[Span]LoopScope, len(f.loopScopes))
	for k, v := range f.loopScopes {
		out[k] = v
	}
	return out
}

func sortedValues(m map[Value]struct{}) []Value {
	out := make([]Value, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		if out[i].FuncLine != out[j].FuncLine {
			return out[i].FuncLine < out[j].FuncLine
		}
		return out[i].Name < out[j].Name
	})
	return out
}
