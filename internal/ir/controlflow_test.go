package ir

import (
	"testing"

	"github.com/reposlice/reposlice/internal/model"
)

func TestPrecedes(t *testing.T) {
	t.Parallel()

	// Geometry:
	//   if at 9..16 with true branch [10,12] and else branch [14,16]
	//   loop at 19..30 with body [20,30]
	branchy := model.NewFunction(1, "branchy", "", 1, 40, nil, "a.c")
	branchy.AddIfScope(model.Span{Start: 9, End: 16}, model.IfScope{
		Cond: model.Span{Start: 9, End: 9},
		True: model.Span{Start: 10, End: 12},
		Else: model.Span{Start: 14, End: 16},
	})
	branchy.AddLoopScope(model.Span{Start: 19, End: 30}, model.LoopScope{
		Header: model.Span{Start: 19, End: 19},
		Body:   model.Span{Start: 20, End: 30},
	})

	// No loop covers lines 20..23 here.
	shortLoop := model.NewFunction(2, "shortLoop", "", 1, 40, nil, "a.c")
	shortLoop.AddLoopScope(model.Span{Start: 19, End: 23}, model.LoopScope{
		Header: model.Span{Start: 19, End: 19},
		Body:   model.Span{Start: 20, End: 23},
	})

	tests := []struct {
		name string
		fn   *model.Function
		src  int
		sink int
		want bool
	}{
		{"same line", branchy, 5, 5, true},
		{"forward straight line", branchy, 3, 7, true},
		{"true branch to else branch", branchy, 11, 15, false},
		{"before if to else branch", branchy, 5, 15, true},
		{"backward inside loop body", branchy, 25, 22, true},
		{"backward without covering loop", branchy, 35, 32, false},
		{"backward outside short loop body", shortLoop, 25, 22, false},
		{"backward inside short loop body", shortLoop, 23, 21, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Precedes(tt.fn, tt.src, tt.sink); got != tt.want {
				t.Errorf("Precedes(%d, %d) = %t, want %t", tt.src, tt.sink, got, tt.want)
			}
			if got := Reachable(tt.fn, tt.src, tt.sink); got != tt.want {
				t.Errorf("Reachable(%d, %d) = %t, want %t", tt.src, tt.sink, got, tt.want)
			}
		})
	}
}
