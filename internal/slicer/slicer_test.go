package slicer

import (
	"context"
	"fmt"
	"testing"

	"github.com/reposlice/reposlice/internal/ir"
	"github.com/reposlice/reposlice/internal/model"
	"github.com/reposlice/reposlice/internal/oracle"
	"github.com/reposlice/reposlice/internal/request"
)

// fakeOracle answers queries from a script keyed by (function id, seed name).
type fakeOracle struct {
	answers map[string]*oracle.SliceOutput
	queries []string
}

func key(funcID int, seedName string) string {
	return fmt.Sprintf("%d|%s", funcID, seedName)
}

func (f *fakeOracle) Slice(_ context.Context, in *oracle.SliceInput) (*oracle.SliceOutput, bool) {
	k := key(in.Function.ID, in.Seeds[0].Name)
	f.queries = append(f.queries, k)
	out, ok := f.answers[k]
	return out, ok
}

// twoFunctionModel wires foo (main.c) calling bar(x) at relative line 5, and
// bar (bar.c) whose single parameter flows to the return at relative line 8.
func twoFunctionModel() (*ir.ProgramModel, *model.Function, *model.Function) {
	pm := ir.NewProgramModel()

	fooCode := "int foo(int x) {\n    int a = 0;\n    int b = 1;\n    int c = 2;\n    int y = bar(x);\n    return y;\n}"
	foo := model.NewFunction(1, "foo", fooCode, 1, 7, nil, "main.c")
	cs := foo.AddCallSite(nil, "bar", 5, 5)
	foo.AddArg(cs.ID, model.Value{
		Name: "x", Label: model.LabelArg, File: "main.c", Line: 5,
		FunctionID: 1, FunctionName: "foo", FuncLine: 5, Index: 0,
	})
	foo.AddOutval(cs.ID, model.Value{
		Name: "bar(x)", Label: model.LabelOut, File: "main.c", Line: 5,
		FunctionID: 1, FunctionName: "foo", FuncLine: 5, Index: -1,
	})

	barCode := "int bar(int value) {\n    int d = 0;\n    int e = 0;\n    int f = 0;\n    int g = 0;\n    int h = 0;\n    int result = value;\n    return result;\n}"
	bar := model.NewFunction(2, "bar", barCode, 1, 9, nil, "bar.c")
	bar.AddPara(model.Value{
		Name: "value", Label: model.LabelPara, File: "bar.c", Line: 1,
		FunctionID: 2, FunctionName: "bar", FuncLine: 1, Index: 0,
	})
	bar.AddRetval(model.Value{
		Name: "result", Label: model.LabelRet, File: "bar.c", Line: 8,
		FunctionID: 2, FunctionName: "bar", FuncLine: 8, Index: 0,
	})

	pm.SetFunction(foo)
	pm.SetFunction(bar)
	pm.AddCallEdge(foo.ID, cs.ID, bar.ID)
	return pm, foo, bar
}

func backwardRequest() *request.SliceRequest {
	return &request.SliceRequest{
		RequestID: "t1",
		FilePath:  "bar.c",
		SeedLine:  8,
		SeedName:  "result",
		Backward:  true,
	}
}

func TestBackwardSliceCrossesParameter(t *testing.T) {
	t.Parallel()

	pm, foo, bar := twoFunctionModel()
	fake := &fakeOracle{answers: map[string]*oracle.SliceOutput{
		key(bar.ID, "result"): {
			Lines:     []int{7, 8},
			ExtValues: []oracle.ExtValue{{Kind: oracle.ExtParameter, Index: 0, Line: -1}},
		},
		key(foo.ID, "x"): {
			Lines: []int{1, 5},
		},
	}}

	report, err := New(pm, fake, 2).Run(context.Background(), backwardRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	barLines := report.Functions["bar"]
	if len(barLines) != 2 || barLines[0] != 7 || barLines[1] != 8 {
		t.Errorf("bar lines = %v, want [7 8]", barLines)
	}
	fooLines := report.Functions["foo"]
	if len(fooLines) != 2 || fooLines[0] != 1 || fooLines[1] != 5 {
		t.Errorf("foo lines = %v, want [1 5]", fooLines)
	}
}

func TestDepthZeroSuppressesExpansion(t *testing.T) {
	t.Parallel()

	pm, foo, bar := twoFunctionModel()
	fake := &fakeOracle{answers: map[string]*oracle.SliceOutput{
		key(bar.ID, "result"): {
			Lines:     []int{8},
			ExtValues: []oracle.ExtValue{{Kind: oracle.ExtParameter, Index: 0, Line: -1}},
		},
		key(foo.ID, "x"): {Lines: []int{5}},
	}}

	report, err := New(pm, fake, 0).Run(context.Background(), backwardRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := report.Functions["foo"]; ok {
		t.Error("depth 0 must not expand into the caller")
	}
	if lines := report.Functions["bar"]; len(lines) != 1 || lines[0] != 8 {
		t.Errorf("bar lines = %v, want [8]", lines)
	}
	if len(fake.queries) != 1 {
		t.Errorf("oracle queried %d times, want 1: %v", len(fake.queries), fake.queries)
	}
}

func TestBackwardOutputValueExpansion(t *testing.T) {
	t.Parallel()

	pm, foo, bar := twoFunctionModel()
	// Seed inside foo; its slice depends on the result of the bar call, so
	// the frontier crosses into bar's return values.
	fake := &fakeOracle{answers: map[string]*oracle.SliceOutput{
		key(foo.ID, "y"): {
			Lines: []int{5, 6},
			ExtValues: []oracle.ExtValue{
				{Kind: oracle.ExtOutputValue, Callee: "bar", Index: -1, Line: 5},
			},
		},
		key(bar.ID, "result"): {Lines: []int{7, 8}},
	}}

	req := &request.SliceRequest{
		RequestID: "t2", FilePath: "main.c", SeedLine: 6, SeedName: "y", Backward: true,
	}
	report, err := New(pm, fake, 3).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if lines := report.Functions["bar"]; len(lines) != 2 {
		t.Errorf("bar lines = %v, want the callee's slice", lines)
	}
	if lines := report.Functions["foo"]; len(lines) != 2 {
		t.Errorf("foo lines = %v", lines)
	}
}

func TestForwardSliceCrossesArgumentAndReturn(t *testing.T) {
	t.Parallel()

	pm, foo, bar := twoFunctionModel()
	fake := &fakeOracle{answers: map[string]*oracle.SliceOutput{
		// x flows into the bar call; bar's parameter flows to its return,
		// which flows back into foo's output value.
		key(foo.ID, "x"): {
			Lines: []int{1, 5},
			ExtValues: []oracle.ExtValue{
				{Kind: oracle.ExtArgument, Callee: "bar", Index: 0, Line: 5},
			},
		},
		key(bar.ID, "value"): {
			Lines:     []int{1, 7, 8},
			ExtValues: []oracle.ExtValue{{Kind: oracle.ExtReturnValue, Index: -1, Line: -1}},
		},
		key(foo.ID, "bar(x)"): {Lines: []int{5, 6}},
	}}

	req := &request.SliceRequest{
		RequestID: "t3", FilePath: "main.c", SeedLine: 1, SeedName: "x", Backward: false,
	}
	report, err := New(pm, fake, 3).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if lines := report.Functions["bar"]; len(lines) != 3 {
		t.Errorf("bar lines = %v, want [1 7 8]", lines)
	}
	// foo's lines merge the seed query and the return-value hop.
	fooLines := report.Functions["foo"]
	want := []int{1, 5, 6}
	if len(fooLines) != len(want) {
		t.Fatalf("foo lines = %v, want %v", fooLines, want)
	}
	for i := range want {
		if fooLines[i] != want[i] {
			t.Errorf("foo lines = %v, want %v", fooLines, want)
		}
	}
}

func TestOracleFailureUnderApproximates(t *testing.T) {
	t.Parallel()

	pm, _, bar := twoFunctionModel()
	fake := &fakeOracle{answers: map[string]*oracle.SliceOutput{
		key(bar.ID, "result"): {
			Lines:     []int{8},
			ExtValues: []oracle.ExtValue{{Kind: oracle.ExtParameter, Index: 0, Line: -1}},
		},
		// No answer for foo's argument: that branch is dropped.
	}}

	report, err := New(pm, fake, 2).Run(context.Background(), backwardRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := report.Functions["foo"]; ok {
		t.Error("an unanswered query must drop its branch, not invent lines")
	}
	if lines := report.Functions["bar"]; len(lines) != 1 || lines[0] != 8 {
		t.Errorf("bar lines = %v, want [8]", lines)
	}
}

func TestRevisitedValueQueriedOnce(t *testing.T) {
	t.Parallel()

	// foo calls bar twice with the same argument value; the parameter hop
	// reaches the identical (function, value) pair through both call sites.
	pm := ir.NewProgramModel()

	foo := model.NewFunction(1, "foo", "int foo(int x) {\n    bar(x);\n    bar(x);\n}", 1, 4, nil, "main.c")
	arg := model.Value{
		Name: "x", Label: model.LabelArg, File: "main.c", Line: 2,
		FunctionID: 1, FunctionName: "foo", FuncLine: 2, Index: 0,
	}
	cs1 := foo.AddCallSite(nil, "bar", 2, 2)
	foo.AddArg(cs1.ID, arg)
	cs2 := foo.AddCallSite(nil, "bar", 3, 3)
	foo.AddArg(cs2.ID, arg)

	bar := model.NewFunction(2, "bar", "int bar(int value) {\n    return value;\n}", 6, 8, nil, "main.c")
	bar.AddRetval(model.Value{
		Name: "value", Label: model.LabelRet, File: "main.c", Line: 7,
		FunctionID: 2, FunctionName: "bar", FuncLine: 2, Index: 0,
	})

	pm.SetFunction(foo)
	pm.SetFunction(bar)
	pm.AddCallEdge(foo.ID, cs1.ID, bar.ID)
	pm.AddCallEdge(foo.ID, cs2.ID, bar.ID)

	fake := &fakeOracle{answers: map[string]*oracle.SliceOutput{
		key(bar.ID, "value"): {
			Lines:     []int{2},
			ExtValues: []oracle.ExtValue{{Kind: oracle.ExtParameter, Index: 0, Line: -1}},
		},
		key(foo.ID, "x"): {Lines: []int{2}},
	}}

	req := &request.SliceRequest{
		RequestID: "t4", FilePath: "main.c", SeedLine: 7, SeedName: "value", Backward: true,
	}
	report, err := New(pm, fake, 5).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.queries) != 2 {
		t.Errorf("oracle queried %d times, want 2 (visited set): %v", len(fake.queries), fake.queries)
	}
	if lines := report.Functions["foo"]; len(lines) != 1 || lines[0] != 2 {
		t.Errorf("foo lines = %v, want [2]", lines)
	}
}

func TestSeedOutsideAnyFunction(t *testing.T) {
	t.Parallel()

	pm, _, _ := twoFunctionModel()
	fake := &fakeOracle{answers: map[string]*oracle.SliceOutput{}}

	req := &request.SliceRequest{
		RequestID: "t5", FilePath: "bar.c", SeedLine: 200, SeedName: "ghost", Backward: true,
	}
	report, err := New(pm, fake, 2).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Functions) != 0 {
		t.Errorf("expected an empty report, got %v", report.Functions)
	}
	if len(fake.queries) != 0 {
		t.Errorf("oracle should not be queried, got %v", fake.queries)
	}
}

func TestAmbiguousSeedIsFatal(t *testing.T) {
	t.Parallel()

	pm := ir.NewProgramModel()
	// Overlapping spans in the same file, as with a function-like macro
	// sharing lines with a function definition.
	pm.SetFunction(model.NewFunction(1, "a", "", 1, 10, nil, "x.c"))
	pm.SetFunction(model.NewFunction(2, "b", "", 5, 12, nil, "x.c"))

	req := &request.SliceRequest{
		RequestID: "t6", FilePath: "x.c", SeedLine: 6, SeedName: "v", Backward: true,
	}
	if _, err := New(pm, &fakeOracle{}, 1).Run(context.Background(), req); err == nil {
		t.Fatal("ambiguous seed location must be an error")
	}
}

func TestOutOfRangeOracleLinesDropped(t *testing.T) {
	t.Parallel()

	pm, _, bar := twoFunctionModel()
	fake := &fakeOracle{answers: map[string]*oracle.SliceOutput{
		key(bar.ID, "result"): {Lines: []int{0, 8, 42}},
	}}

	report, err := New(pm, fake, 0).Run(context.Background(), backwardRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lines := report.Functions["bar"]; len(lines) != 1 || lines[0] != 8 {
		t.Errorf("bar lines = %v, want only the in-span line 8", lines)
	}
}
