package symbols

import (
	"testing"

	"github.com/go-imp/impc/types"
)

// A variable declared in the root scope is visible there.
func TestLookupRoot(t *testing.T) {
	tbl := New()
	tbl.AddVariable("x", Variable{DataType: types.U64})

	v, ok := tbl.LookupCurrent("x")
	if !ok {
		t.Fatalf("expected to find 'x'")
	}
	if !v.DataType.Equal(types.U64) {
		t.Fatalf("expected U64, got %s", v.DataType)
	}
}

// A `let` inside a nested scope is not visible after leaving that scope -
// scope discipline.
func TestScopeDiscipline(t *testing.T) {
	tbl := New()

	inner := tbl.AddScope()
	tbl.EnterScope(inner)
	tbl.AddVariable("y", Variable{DataType: types.TBool})
	if _, ok := tbl.LookupCurrent("y"); !ok {
		t.Fatalf("expected 'y' visible inside its own scope")
	}
	tbl.LeaveScope()

	if _, ok := tbl.LookupCurrent("y"); ok {
		t.Fatalf("'y' leaked out of its scope")
	}
}

// An identifier declared in an enclosing scope is visible from a nested
// scope.
func TestNestedLookupFindsOuter(t *testing.T) {
	tbl := New()
	tbl.AddVariable("outer", Variable{DataType: types.U64})

	inner := tbl.AddScope()
	tbl.EnterScope(inner)
	defer tbl.LeaveScope()

	if _, ok := tbl.LookupCurrent("outer"); !ok {
		t.Fatalf("expected 'outer' visible from nested scope")
	}
}

// Scope IDs remain valid references even after further insertions grow
// the table - the "stable ID" invariant.
func TestScopeIDsStable(t *testing.T) {
	tbl := New()
	first := tbl.AddScope()

	// Grow the table substantially.
	for i := 0; i < 10; i++ {
		tbl.AddScope()
	}

	tbl.EnterScope(first)
	tbl.AddVariable("z", Variable{DataType: types.U64})
	tbl.LeaveScope()

	tbl.EnterScope(first)
	defer tbl.LeaveScope()
	if _, ok := tbl.LookupCurrent("z"); !ok {
		t.Fatalf("scope ID %d should still resolve to the same scope", first)
	}
}

func TestLookupMissing(t *testing.T) {
	tbl := New()
	if _, ok := tbl.LookupCurrent("nope"); ok {
		t.Fatalf("expected lookup of an undeclared name to fail")
	}
}
