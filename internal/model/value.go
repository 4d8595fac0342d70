// Package model defines the program entities tracked by the analyzer:
// values, user-defined functions, and library API stubs.
package model

import "fmt"

// ValueLabel describes the role a value plays in the program.
type ValueLabel int

const (
	// Seed markers used by the slice driver.
	LabelSrc ValueLabel = iota + 1
	LabelSink

	// Parameter kinds.
	LabelPara
	LabelVariPara
	LabelObjPara

	// Argument kinds.
	LabelArg
	LabelObjArg

	// Return and call-expression output values.
	LabelRet
	LabelOut

	// Expression kinds.
	LabelBufAccessExpr
	LabelNonBufAccessExpr
	LabelConstant
	LabelDeclaration

	// Scope markers.
	LabelLocal
	LabelGlobal
)

var labelNames = map[ValueLabel]string{
	LabelSrc:              "src",
	LabelSink:             "sink",
	LabelPara:             "para",
	LabelVariPara:         "vari_para",
	LabelObjPara:          "obj_para",
	LabelArg:              "arg",
	LabelObjArg:           "obj_arg",
	LabelRet:              "ret",
	LabelOut:              "out",
	LabelBufAccessExpr:    "buf_access_expr",
	LabelNonBufAccessExpr: "non_buf_access_expr",
	LabelConstant:         "constant",
	LabelDeclaration:      "declaration",
	LabelLocal:            "local",
	LabelGlobal:           "global",
}

var labelDescriptions = map[ValueLabel]string{
	LabelSrc:              "source",
	LabelSink:             "sink",
	LabelPara:             "parameter",
	LabelVariPara:         "element of the variadic parameter",
	LabelObjPara:          "object parameter",
	LabelArg:              "argument",
	LabelObjArg:           "receiver object argument",
	LabelRet:              "return value",
	LabelOut:              "output value of the call expression",
	LabelBufAccessExpr:    "buffer access expression",
	LabelNonBufAccessExpr: "non-buffer access expression",
	LabelConstant:         "constant value",
	LabelDeclaration:      "declared variable",
	LabelLocal:            "local variable",
	LabelGlobal:           "global variable",
}

func (l ValueLabel) String() string {
	if s, ok := labelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("ValueLabel(%d)", int(l))
}

// IsPara reports whether the label is one of the parameter kinds.
func (l ValueLabel) IsPara() bool {
	return l == LabelPara || l == LabelVariPara || l == LabelObjPara
}

// IsArg reports whether the label is one of the argument kinds.
func (l ValueLabel) IsArg() bool {
	return l == LabelArg || l == LabelObjArg
}

// ParseValueLabel converts a label name back to its ValueLabel.
func ParseValueLabel(s string) (ValueLabel, error) {
	for l, name := range labelNames {
		if name == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("invalid value label %q", s)
}

// Value is a single program entity: a parameter, argument, return value,
// expression or seed marker at a known location. Values are plain comparable
// structs; identity is structural, so a Value can be used directly as a map
// key for deduplication. A Value is never mutated after construction.
type Value struct {
	// Name is the variable name or expression text.
	Name  string
	Label ValueLabel

	// File and Line locate the value in the source file (1-based).
	File string
	Line int

	// FunctionID and FunctionName identify the owning function
	// (-1 and "" for globals).
	FunctionID   int
	FunctionName string

	// FuncLine is the function-relative line number (-1 for globals).
	FuncLine int

	// Index is the parameter/argument position, -1 if not applicable.
	Index int

	// Comment is optional free text attached by the extractor.
	Comment string
}

// NewValue returns a Value with the not-applicable sentinels set. Callers
// fill in the owning-function fields when they are known.
func NewValue(name string, label ValueLabel, file string, line int) Value {
	return Value{
		Name:       name,
		Label:      label,
		File:       file,
		Line:       line,
		FunctionID: -1,
		FuncLine:   -1,
		Index:      -1,
	}
}

func (v Value) String() string {
	return fmt.Sprintf("(%s, %s, %s, %d, %d, %s, %d, %d, %s)",
		v.Name, v.Label, v.File, v.Line, v.FunctionID, v.FunctionName,
		v.FuncLine, v.Index, v.Comment)
}

// Description renders the value the way oracle prompts expect it, e.g.
// "the 2nd argument `buf` (at index 1) at line 7 of this function `foo`".
func (v Value) Description() string {
	kind, ok := labelDescriptions[v.Label]
	if !ok {
		kind = "value"
	}

	var desc string
	if v.Index != -1 {
		desc = fmt.Sprintf("the %s %s `%s` (at index %d)", ordinal(v.Index+1), kind, v.Name, v.Index)
	} else {
		desc = fmt.Sprintf("the %s `%s`", kind, v.Name)
	}

	if v.FunctionName != "" && v.FuncLine != -1 {
		desc += fmt.Sprintf(" at line %d of this function `%s`", v.FuncLine, v.FunctionName)
	}
	if v.Comment != "" {
		desc += fmt.Sprintf(" (comment: %s)", v.Comment)
	}
	return desc
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return fmt.Sprintf("%dth", n)
	}
	switch n % 10 {
	case 1:
		return fmt.Sprintf("%dst", n)
	case 2:
		return fmt.Sprintf("%dnd", n)
	case 3:
		return fmt.Sprintf("%drd", n)
	}
	return fmt.Sprintf("%dth", n)
}
