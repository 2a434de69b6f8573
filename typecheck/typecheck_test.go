package typecheck

import (
	"testing"

	"github.com/go-imp/impc/ast"
	"github.com/go-imp/impc/cerrors"
	"github.com/go-imp/impc/parser"
	"github.com/go-imp/impc/types"
)

func mustParse(t *testing.T, src string) *parser.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse error: %s", err)
	}
	return prog
}

func checkOK(t *testing.T, src string) *parser.Program {
	t.Helper()
	prog := mustParse(t, src)
	if err := New(prog.Symbols).Check(prog.Statements); err != nil {
		t.Fatalf("unexpected type error: %s", err)
	}
	return prog
}

// An integer literal with no contextual expectation defaults to U64.
func TestLiteralDefaultsToU64(t *testing.T) {
	prog := checkOK(t, "fn main() { 42; };")
	fn := prog.Statements[0].(*ast.FunctionDeclaration)
	last := fn.Body.Statements[len(fn.Body.Statements)-1]
	if !last.DataType().Equal(types.U64) {
		t.Fatalf("expected U64, got %s", last.DataType())
	}
}

// A literal adopts the expected width forced by its declaration.
func TestLiteralAdoptsExpectedWidth(t *testing.T) {
	prog := checkOK(t, "fn main() { let x: S8 = 5; };")
	fn := prog.Statements[0].(*ast.FunctionDeclaration)
	decl := fn.Body.Statements[0].(*ast.Declaration)
	if !decl.Init.DataType().Equal(types.S8) {
		t.Fatalf("expected S8, got %s", decl.Init.DataType())
	}
}

// A literal too wide for its forced expectation is a type error.
func TestLiteralOverflowsExpectedWidth(t *testing.T) {
	prog := mustParse(t, "fn main() { let x: S8 = 1000; };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected a type error for an out-of-range literal")
	}
}

func TestUndeclaredIdentifier(t *testing.T) {
	prog := mustParse(t, "fn main() { y; };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected an error for an undeclared identifier")
	}
}

// `if 1 { };` is a type error: the condition must be Bool.
func TestIfConditionMustBeBool(t *testing.T) {
	prog := mustParse(t, "fn main() { if 1 { }; };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected TypeMismatch(expected=Bool, got=U64)")
	}
	var mismatch cerrors.TypeMismatch
	unwrapInto(t, err, &mismatch)
	if !mismatch.Expected.(types.DataType).Equal(types.TBool) {
		t.Fatalf("expected Bool as the expected type, got %s", mismatch.Expected)
	}
}

// Mixed-signedness comparisons are rejected.
func TestMixedSignednessComparisonRejected(t *testing.T) {
	prog := mustParse(t, "fn main() { let a: S64 = 1; let b: U64 = 2; a == b; };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected a type error comparing S64 to U64")
	}
}

func TestCallArityMismatch(t *testing.T) {
	prog := mustParse(t, "fn f(a: U64) { } fn main() { f(1, 2); };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected an ArityMismatch error")
	}
}

func TestNotCallable(t *testing.T) {
	prog := mustParse(t, "fn main() { let x: U64 = 1; x(); };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected a NotCallable error")
	}
}

func TestAssignmentTypeMismatch(t *testing.T) {
	prog := mustParse(t, "fn main() { let x: U64 = 1; x = true; };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected a type error assigning Bool to a U64 variable")
	}
}

// `#x` yields `Ref(T)`, and `@` of that yields `T` back.
func TestReferenceDereferenceRoundTrip(t *testing.T) {
	prog := checkOK(t, "fn main() { let x: U64 = 1; let p: #U64 = #x; @p; };")
	fn := prog.Statements[0].(*ast.FunctionDeclaration)

	pDecl := fn.Body.Statements[1].(*ast.Declaration)
	if pDecl.Init.DataType().Kind != types.Ref {
		t.Fatalf("expected '#x' to have a Ref type, got %s", pDecl.Init.DataType())
	}

	deref := fn.Body.Statements[2]
	if !deref.DataType().Equal(types.U64) {
		t.Fatalf("expected '@p' to be U64, got %s", deref.DataType())
	}
}

// `#` applied to a non-lvalue is rejected.
func TestReferenceOfNonLvalue(t *testing.T) {
	prog := mustParse(t, "fn main() { #1; };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected a NotAnLvalue error")
	}
}

// A recursive function with a matching return type on every path
// type-checks cleanly.
func TestRecursiveFunctionTypechecks(t *testing.T) {
	src := `
fn fact(n: U64): U64 {
	if n == 0 {
		1;
	} else {
		n * fact(n - 1);
	};
}
fn main() {
	fact(5);
};
`
	checkOK(t, src)
}

// Inference is deterministic: type-checking two independent parses of
// the same source yields the same resolved types throughout.
func TestDeterminism(t *testing.T) {
	src := `
fn add(a: U64, b: U64): U64 {
	a + b;
}
fn main() {
	add(1, 2);
};
`
	progA := checkOK(t, src)
	progB := checkOK(t, src)

	fnA := progA.Statements[0].(*ast.FunctionDeclaration)
	fnB := progB.Statements[0].(*ast.FunctionDeclaration)

	if !fnA.DataType().Equal(fnB.DataType()) {
		t.Fatalf("inference was not deterministic: %s vs %s", fnA.DataType(), fnB.DataType())
	}
	if !fnA.Body.DataType().Equal(fnB.Body.DataType()) {
		t.Fatalf("body type was not deterministic: %s vs %s", fnA.Body.DataType(), fnB.Body.DataType())
	}
}

// An if/else whose branches disagree is a type error.
func TestIfElseBranchesMustUnify(t *testing.T) {
	prog := mustParse(t, "fn main() { if true { 1; } else { true; }; };")
	err := New(prog.Symbols).Check(prog.Statements)
	if err == nil {
		t.Fatalf("expected a type error unifying U64 and Bool branches")
	}
}

func unwrapInto(t *testing.T, err error, target *cerrors.TypeMismatch) {
	t.Helper()
	type causer interface{ Cause() error }
	for err != nil {
		if m, ok := err.(cerrors.TypeMismatch); ok {
			*target = m
			return
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	t.Fatalf("expected a cerrors.TypeMismatch in the error chain, got %v", err)
}
