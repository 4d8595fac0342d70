package analyzer

import (
	"context"
	"strings"
	"testing"

	"github.com/reposlice/reposlice/internal/ir"
	"github.com/reposlice/reposlice/internal/lang"
	"github.com/reposlice/reposlice/internal/model"
)

const sampleProgram = `#define MAXLEN 128
#define SQUARE(x) ((x) * (x))

int bar(int value) {
    int doubled = value * 2;
    return doubled;
}

int foo(int x) {
    int y = bar(x);
    int z = SQUARE(y);
    return y + z;
}

int classify(int n) {
    if (n > 0) {
        n = n + 1;
    } else {
        n = n - 1;
    }
    while (n < 100) {
        n = n + 2;
    }
    return log_value(n);
}
`

func buildSample(t *testing.T) *ir.ProgramModel {
	t.Helper()

	language, ok := lang.Get("c")
	if !ok {
		t.Fatal("c language not registered")
	}
	pm, err := New(language, map[string]string{"sample.c": sampleProgram}, 4).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return pm
}

func functionByName(t *testing.T, pm *ir.ProgramModel, name string) *model.Function {
	t.Helper()

	ids := pm.FunctionIDsByName(name)
	if len(ids) != 1 {
		t.Fatalf("expected exactly one function %q, got ids %v", name, ids)
	}
	f, ok := pm.Function(ids[0])
	if !ok {
		t.Fatalf("function %q (id %d) was not analyzed", name, ids[0])
	}
	return f
}

func TestFunctionBoundaries(t *testing.T) {
	t.Parallel()
	pm := buildSample(t)

	bar := functionByName(t, pm, "bar")
	if bar.StartLine != 4 || bar.EndLine != 7 {
		t.Errorf("bar spans %d..%d, want 4..7", bar.StartLine, bar.EndLine)
	}
	if bar.File != "sample.c" {
		t.Errorf("bar.File = %q", bar.File)
	}
	if !strings.HasPrefix(bar.LinedCode, "1. int bar") {
		t.Errorf("bar.LinedCode = %q", bar.LinedCode)
	}

	foo := functionByName(t, pm, "foo")
	if foo.StartLine != 9 || foo.EndLine != 13 {
		t.Errorf("foo spans %d..%d, want 9..13", foo.StartLine, foo.EndLine)
	}
}

func TestParameterExtraction(t *testing.T) {
	t.Parallel()
	pm := buildSample(t)

	bar := functionByName(t, pm, "bar")
	paras := bar.Paras()
	if len(paras) != 1 {
		t.Fatalf("bar has %d parameters, want 1: %v", len(paras), paras)
	}
	p := paras[0]
	if p.Name != "value" || p.Label != model.LabelPara || p.Index != 0 || p.FuncLine != 1 {
		t.Errorf("bar parameter = %v", p)
	}
}

func TestReturnValueExtraction(t *testing.T) {
	t.Parallel()
	pm := buildSample(t)

	bar := functionByName(t, pm, "bar")
	rets := bar.Retvals()
	if len(rets) != 1 {
		t.Fatalf("bar has %d return values, want 1: %v", len(rets), rets)
	}
	if rets[0].Name != "doubled" || rets[0].FuncLine != 3 {
		t.Errorf("bar return value = %v", rets[0])
	}

	foo := functionByName(t, pm, "foo")
	rets = foo.Retvals()
	if len(rets) != 1 || rets[0].Name != "y + z" {
		t.Errorf("foo return values = %v", rets)
	}
}

func TestMacroExtraction(t *testing.T) {
	t.Parallel()
	pm := buildSample(t)

	def, ok := pm.Global("MAXLEN")
	if !ok || strings.TrimSpace(def) != "128" {
		t.Errorf("Global(MAXLEN) = %q, %t", def, ok)
	}

	square := functionByName(t, pm, "SQUARE")
	paras := square.Paras()
	if len(paras) != 1 || paras[0].Name != "x" || paras[0].Index != 0 {
		t.Errorf("SQUARE parameters = %v", paras)
	}
}

func TestCallGraphEdges(t *testing.T) {
	t.Parallel()
	pm := buildSample(t)

	foo := functionByName(t, pm, "foo")
	bar := functionByName(t, pm, "bar")
	square := functionByName(t, pm, "SQUARE")

	sites := foo.CallSitesByCallee("bar")
	if len(sites) != 1 {
		t.Fatalf("foo has %d bar call sites, want 1", len(sites))
	}
	cs := sites[0]
	if cs.StartLine != 2 {
		t.Errorf("bar call site at relative line %d, want 2", cs.StartLine)
	}

	callees := pm.CalleesAt(foo.ID, cs.ID)
	if len(callees) != 1 || callees[0].ID != bar.ID {
		t.Errorf("CalleesAt(foo, bar site) = %v", callees)
	}

	refs := pm.CallerRefs(bar.ID)
	if len(refs) != 1 || refs[0].CallerID != foo.ID {
		t.Errorf("CallerRefs(bar) = %v", refs)
	}

	args := foo.ArgsAtIndex(cs.ID, 0)
	if len(args) != 1 || args[0].Name != "x" {
		t.Errorf("arguments at bar site = %v", args)
	}

	outv, ok := foo.Outval(cs.ID)
	if !ok || outv.Name != "bar(x)" || outv.Label != model.LabelOut {
		t.Errorf("Outval at bar site = %v, %t", outv, ok)
	}

	// The macro invocation resolves like a function call.
	squareSites := foo.CallSitesByCallee("SQUARE")
	if len(squareSites) != 1 {
		t.Fatalf("foo has %d SQUARE call sites, want 1", len(squareSites))
	}
	callees = pm.CalleesAt(foo.ID, squareSites[0].ID)
	if len(callees) != 1 || callees[0].ID != square.ID {
		t.Errorf("CalleesAt(foo, SQUARE site) = %v", callees)
	}
}

func TestUnresolvedCallBecomesAPI(t *testing.T) {
	t.Parallel()
	pm := buildSample(t)

	classify := functionByName(t, pm, "classify")
	apis := pm.CalleeAPIs(classify.ID)
	if len(apis) != 1 {
		t.Fatalf("classify calls %d APIs, want 1: %v", len(apis), apis)
	}
	if apis[0].Name != "log_value" || apis[0].ParaCount != 1 {
		t.Errorf("API = %v, want log_value/1", apis[0])
	}

	sites := classify.APICallSites()
	if len(sites) != 1 || sites[0].Callee != "log_value" {
		t.Errorf("APICallSites = %v", sites)
	}
}

func TestScopeExtraction(t *testing.T) {
	t.Parallel()
	pm := buildSample(t)

	classify := functionByName(t, pm, "classify")

	ifs := classify.IfScopes()
	if len(ifs) != 1 {
		t.Fatalf("classify has %d if scopes, want 1", len(ifs))
	}
	for _, scope := range ifs {
		if scope.CondText != "(n > 0)" {
			t.Errorf("condition text = %q", scope.CondText)
		}
		if !scope.True.Contains(3) {
			t.Errorf("true branch %v should contain relative line 3", scope.True)
		}
		if scope.Else.IsZero() || !scope.Else.Contains(5) {
			t.Errorf("else branch %v should contain relative line 5", scope.Else)
		}
	}

	loops := classify.LoopScopes()
	if len(loops) != 1 {
		t.Fatalf("classify has %d loop scopes, want 1", len(loops))
	}
	for _, scope := range loops {
		if scope.HeaderText != "(n < 100)" {
			t.Errorf("loop header text = %q", scope.HeaderText)
		}
		if !scope.Body.Contains(8) {
			t.Errorf("loop body %v should contain relative line 8", scope.Body)
		}
	}

	// The extracted geometry feeds the control-flow queries directly.
	if ir.Precedes(classify, 3, 5) {
		t.Error("lines on opposite if/else branches must not precede each other")
	}
	if !ir.Precedes(classify, 8, 8) {
		t.Error("a loop-body line precedes itself")
	}
}

func TestForLoopScope(t *testing.T) {
	t.Parallel()

	language, _ := lang.Get("c")
	src := `int sum(int n) {
    int total = 0;
    for (int i = 0; i < n; i++) {
        total = total + i;
        total = total - 1;
    }
    return total;
}
`
	pm, err := New(language, map[string]string{"sum.c": src}, 1).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sum := functionByName(t, pm, "sum")

	loops := sum.LoopScopes()
	if len(loops) != 1 {
		t.Fatalf("sum has %d loop scopes, want 1", len(loops))
	}
	for _, scope := range loops {
		if scope.HeaderText != "int i = 0; i < n; i++" {
			t.Errorf("for header text = %q", scope.HeaderText)
		}
		if scope.Body.Start != 4 || scope.Body.End != 5 {
			t.Errorf("for body = %v, want [4,5]", scope.Body)
		}
	}

	// Backward flow is admitted only inside the loop body.
	if !ir.Precedes(sum, 5, 4) {
		t.Error("backward edge inside the loop body should be reachable")
	}
	if ir.Precedes(sum, 7, 2) {
		t.Error("backward edge outside any loop should be unreachable")
	}
}

func TestParseFailureDropsFile(t *testing.T) {
	t.Parallel()

	language, _ := lang.Get("c")
	files := map[string]string{
		"good.c": "int ok(void) {\n    return 1;\n}\n",
	}
	pm, err := New(language, files, 2).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pm.Functions()) != 1 {
		t.Errorf("expected 1 function, got %d", len(pm.Functions()))
	}
}

func TestVariadicResolution(t *testing.T) {
	t.Parallel()

	// Resolution admits a variadic callee whenever its fixed arity does not
	// exceed the argument count; fixed-arity callees need an exact match.
	pm := ir.NewProgramModel()

	va := model.NewFunction(1, "logf2", "", 1, 3, nil, "v.c")
	va.AddPara(model.Value{Name: "fmt", Label: model.LabelPara, Index: 0, FunctionID: 1, File: "v.c", Line: 1, FuncLine: 1})
	va.AddPara(model.Value{Name: "args", Label: model.LabelVariPara, Index: 1, FunctionID: 1, File: "v.c", Line: 1, FuncLine: 1})

	caller := model.NewFunction(2, "main", "", 1, 5, nil, "v.c")
	cs := caller.AddCallSite(nil, "logf2", 2, 2)
	for i, name := range []string{"fmt", "a", "b"} {
		caller.AddArg(cs.ID, model.Value{Name: name, Label: model.LabelArg, Index: i, FunctionID: 2, File: "v.c", Line: 2, FuncLine: 2})
	}

	language, _ := lang.Get("c")
	a := New(language, nil, 1)
	a.pm = pm
	pm.SetFunction(va)
	pm.SetFunction(caller)
	if id := pm.RegisterRawFunction(ir.RawFunction{Name: "logf2", StartLine: 1, EndLine: 3}, "v.c"); id != va.ID {
		t.Fatalf("registry id %d does not match function id %d", id, va.ID)
	}

	ids := a.resolveCallees(caller, cs)
	if len(ids) != 1 || ids[0] != va.ID {
		t.Errorf("resolveCallees = %v, want [%d]", ids, va.ID)
	}
}
