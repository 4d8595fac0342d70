package ir

import "github.com/reposlice/reposlice/internal/model"

// Precedes reports whether execution can reach sinkLine after srcLine inside
// one function, using the extracted if/loop scopes. Lines are
// function-relative. This is a coarse line-range approximation, not a full
// control-flow graph: it rules out pairs on mutually exclusive if/else
// branches and backward jumps that no loop body covers, and answers true
// otherwise.
func Precedes(f *model.Function, srcLine, sinkLine int) bool {
	if srcLine == sinkLine {
		return true
	}

	for _, scope := range f.IfScopes() {
		if scope.Else.IsZero() {
			continue
		}
		if scope.True.Contains(srcLine) && scope.Else.Contains(sinkLine) {
			return false
		}
	}

	if srcLine > sinkLine {
		// A textually earlier sink is only reachable through a loop
		// whose body contains both lines.
		for _, scope := range f.LoopScopes() {
			if scope.Body.Contains(srcLine) && scope.Body.Contains(sinkLine) {
				return true
			}
		}
		return false
	}
	return true
}

// Reachable reports whether control can flow from srcLine to sinkLine.
// Ordering is used as the reachability proxy.
func Reachable(f *model.Function, srcLine, sinkLine int) bool {
	return Precedes(f, srcLine, sinkLine)
}
