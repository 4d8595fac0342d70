package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/reposlice/reposlice/internal/ir"
	"github.com/reposlice/reposlice/internal/lang"
	"github.com/reposlice/reposlice/internal/model"
)

// extractFunctionBoundaries records one raw boundary record per function
// definition. A declarator is only attributed to a definition when it starts
// on the definition's line or the line immediately after; this guards
// against multi-line declarators attaching to the wrong statement.
func (a *Analyzer) extractFunctionBoundaries(path string, source []byte, tree *sitter.Tree) {
	for _, def := range nodesOfType(tree.RootNode(), "function_definition") {
		for _, decl := range nodesOfType(def, "function_declarator") {
			declLine := startLine(decl)
			defLine := startLine(def)
			if declLine != defLine && declLine != defLine+1 {
				continue
			}

			name := declaredName(decl, source)
			if name == "" {
				continue
			}

			a.pm.RegisterRawFunction(ir.RawFunction{
				Node:      def,
				Name:      name,
				StartLine: startLine(def),
				EndLine:   endLine(def),
			}, path)
			break
		}
	}
}

func declaredName(decl *sitter.Node, source []byte) string {
	for i := 0; i < int(decl.ChildCount()); i++ {
		child := decl.Child(i)
		switch child.Type() {
		case "identifier", "field_identifier":
			return lang.NodeText(child, source)
		case "qualified_identifier":
			qualified := lang.NodeText(child, source)
			parts := strings.Split(qualified, "::")
			return parts[len(parts)-1]
		}
	}
	return ""
}

// extractGlobals records object-like macros as global definitions and
// function-like macros as pseudo-functions, so call resolution sees macro
// invocations uniformly. No body matching is done against macros.
func (a *Analyzer) extractGlobals(path string, source []byte, tree *sitter.Tree) {
	for _, macro := range nodesOfType(tree.RootNode(), "preproc_def") {
		var name, def string
		for i := 0; i < int(macro.ChildCount()); i++ {
			child := macro.Child(i)
			switch child.Type() {
			case "identifier":
				name = lang.NodeText(child, source)
			case "preproc_arg":
				def = lang.NodeText(child, source)
			}
		}
		if name != "" && def != "" {
			a.pm.RegisterGlobal(name, def)
		}
	}

	for _, macro := range nodesOfType(tree.RootNode(), "preproc_function_def") {
		var name string
		for i := 0; i < int(macro.ChildCount()); i++ {
			child := macro.Child(i)
			if child.Type() == "identifier" {
				name = lang.NodeText(child, source)
				break
			}
		}
		if name == "" {
			continue
		}
		a.pm.RegisterRawFunction(ir.RawFunction{
			Node:      macro,
			Name:      name,
			StartLine: startLine(macro),
			EndLine:   endLine(macro),
		}, path)
	}
}

// extractParameters records each parameter declaration's first identifier
// as a positional parameter, indexed by declaration order. Function-like
// macros declare bare identifiers inside preproc_params instead.
func (a *Analyzer) extractParameters(f *model.Function) {
	content, ok := a.pm.FileContent(f.File)
	if !ok {
		return
	}
	source := []byte(content)

	for _, params := range nodesOfType(f.Node, "preproc_params") {
		idx := 0
		for i := 0; i < int(params.ChildCount()); i++ {
			child := params.Child(i)
			if child.Type() != "identifier" {
				continue
			}
			line := startLine(child)
			f.AddPara(model.Value{
				Name:         lang.NodeText(child, source),
				Label:        model.LabelPara,
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

	for idx, param := range nodesOfType(f.Node, "parameter_declaration") {
		ids := nodesOfType(param, "identifier")
		if len(ids) == 0 {
			continue
		}
		line := startLine(ids[0])
		f.AddPara(model.Value{
			Name:         lang.NodeText(ids[0], source),
			Label:        model.LabelPara,
			File:         f.File,
			Line:         line,
			FunctionID:   f.ID,
			FunctionName: f.Name,
			FuncLine:     f.RelLine(line),
			Index:        idx,
		})
	}
}

// extractReturnValues records the expression text of each return statement.
// The index field is a role disambiguator, always 0.
func (a *Analyzer) extractReturnValues(f *model.Function) {
	content, ok := a.pm.FileContent(f.File)
	if !ok {
		return
	}
	source := []byte(content)

	for _, ret := range nodesOfType(f.Node, "return_statement") {
		if ret.NamedChildCount() == 0 {
			continue // bare return carries no value
		}
		expr := ret.NamedChild(0)
		line := startLine(ret)
		f.AddRetval(model.Value{
			Name:         lang.NodeText(expr, source),
			Label:        model.LabelRet,
			File:         f.File,
			Line:         line,
			FunctionID:   f.ID,
			FunctionName: f.Name,
			FuncLine:     f.RelLine(line),
			Index:        0,
		})
	}
}

// extractIfScopes records, for every if construct, the spans of the
// condition, the true branch and the else branch (zero span if absent),
// keyed by the statement's own span. All lines are function-relative.
func (a *Analyzer) extractIfScopes(f *model.Function) {
	content, ok := a.pm.FileContent(f.File)
	if !ok {
		return
	}
	source := []byte(content)

	for _, ifNode := range nodesOfType(f.Node, "if_statement") {
		var scope model.IfScope
		trueSeen := false

		for i := 0; i < int(ifNode.ChildCount()); i++ {
			child := ifNode.Child(i)
			switch {
			case child.Type() == "parenthesized_expression" || child.Type() == "condition_clause":
				scope.Cond = relSpan(f, child)
				scope.CondText = lang.NodeText(child, source)
			case child.Type() == "else_clause":
				scope.Else = relSpan(f, child)
			case !trueSeen && strings.Contains(child.Type(), "statement"):
				scope.True = relSpan(f, child)
				trueSeen = true
			}
		}

		f.AddIfScope(relSpan(f, ifNode), scope)
	}
}

// extractLoopScopes records header and body spans for for/while loops.
// An empty body collapses to the header's end line.
func (a *Analyzer) extractLoopScopes(f *model.Function) {
	content, ok := a.pm.FileContent(f.File)
	if !ok {
		return
	}
	source := []byte(content)

	for _, loop := range nodesOfType(f.Node, "for_statement") {
		var scope model.LoopScope
		var headerStartByte, headerEndByte uint32

		for i := 0; i < int(loop.ChildCount()); i++ {
			child := loop.Child(i)
			switch child.Type() {
			case "(":
				scope.Header.Start = f.RelLine(startLine(child))
				headerStartByte = child.EndByte()
			case ")":
				scope.Header.End = f.RelLine(endLine(child))
				headerEndByte = child.StartByte()
				scope.HeaderText = string(source[headerStartByte:headerEndByte])
			default:
				if strings.Contains(child.Type(), "statement") {
					scope.Body = bodySpan(f, child, scope.Header.End)
				}
			}
		}

		f.AddLoopScope(relSpan(f, loop), scope)
	}

	for _, loop := range nodesOfType(f.Node, "while_statement") {
		var scope model.LoopScope

		for i := 0; i < int(loop.ChildCount()); i++ {
			child := loop.Child(i)
			switch {
			case child.Type() == "parenthesized_expression" || child.Type() == "condition_clause":
				scope.Header = relSpan(f, child)
				scope.HeaderText = lang.NodeText(child, source)
			case strings.Contains(child.Type(), "statement"):
				scope.Body = bodySpan(f, child, scope.Header.End)
			}
		}

		f.AddLoopScope(relSpan(f, loop), scope)
	}
}

// bodySpan computes a loop body's span from its inner statements. A compound
// body spans its non-brace children; a single-statement body spans itself;
// an empty body collapses to the header's end line.
func bodySpan(f *model.Function, body *sitter.Node, headerEnd int) model.Span {
	if body.Type() != "compound_statement" {
		return relSpan(f, body)
	}

	span := model.Span{}
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if child.Type() == "{" || child.Type() == "}" {
			continue
		}
		s, e := f.RelLine(startLine(child)), f.RelLine(endLine(child))
		if span.IsZero() {
			span = model.Span{Start: s, End: e}
			continue
		}
		if s < span.Start {
			span.Start = s
		}
		if e > span.End {
			span.End = e
		}
	}
	if span.IsZero() {
		span = model.Span{Start: headerEnd, End: headerEnd}
	}
	return span
}

func relSpan(f *model.Function, n *sitter.Node) model.Span {
	return model.Span{Start: f.RelLine(startLine(n)), End: f.RelLine(endLine(n))}
}
