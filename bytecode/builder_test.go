package bytecode_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-imp/impc/bytecode"
	"github.com/go-imp/impc/parser"
	"github.com/go-imp/impc/typecheck"
)

func lower(t *testing.T, src string) *bytecode.ByteCode {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse error: %s", err)
	}
	if err := typecheck.New(prog.Symbols).Check(prog.Statements); err != nil {
		t.Fatalf("type error: %s", err)
	}
	bc, err := bytecode.Build(prog.Statements)
	if err != nil {
		t.Fatalf("lowering error: %s", err)
	}
	return bc
}

func findFunc(t *testing.T, bc *bytecode.ByteCode, name string) *bytecode.Function {
	t.Helper()
	for _, f := range bc.Functions {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no function named %q", name)
	return nil
}

// stack_size == Σ aligned(register_size(i)), and argument_position(0) ==
// 0 (the position function, not the size, of the first argument).
func TestFrameLayout(t *testing.T) {
	bc := lower(t, "fn add(a: U64, b: U64): U64 { let c: U64 = a + b; c; };")
	fn := findFunc(t, bc, "add")

	want := 0
	for _, rt := range fn.RegisterTypes {
		want += rt.SizeAligned()
	}
	if fn.StackSize() != want {
		t.Fatalf("stack size mismatch: got %d, want %d", fn.StackSize(), want)
	}

	if fn.ArgumentPosition(0) != 0 {
		t.Fatalf("argument_position(0) should be 0, got %d", fn.ArgumentPosition(0))
	}
	if len(fn.ArgumentTypes) >= 2 {
		wantPos1 := fn.ArgumentTypes[0].SizeAligned()
		if fn.ArgumentPosition(1) != wantPos1 {
			t.Fatalf("argument_position(1) = %d, want %d", fn.ArgumentPosition(1), wantPos1)
		}
	}
}

// No VoidRegister appears as the A/B/Dst operand of any non-Call
// opcode; every register id referenced stays within RegisterTypes'
// bounds; every Goto*/Label target is consistent within the function.
func TestOpcodeValidity(t *testing.T) {
	bc := lower(t, `
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
`)

	for _, fn := range bc.Functions {
		labels := map[int]bool{}
		referenced := map[int]bool{}

		for _, instr := range fn.Code {
			checkOperand := func(a bytecode.Argument, allowVoid bool) {
				if a.Kind == bytecode.ArgVoidRegister && !allowVoid {
					t.Fatalf("%s: VoidRegister used as an operand of %s", fn.Name, instr.Op)
				}
				if a.Kind == bytecode.ArgRegister && (a.Index < 0 || a.Index >= len(fn.RegisterTypes)) {
					t.Fatalf("%s: register id %d out of bounds (%d registers)", fn.Name, a.Index, len(fn.RegisterTypes))
				}
			}

			allowVoidDst := instr.Op == bytecode.Call
			checkOperand(instr.Dst, allowVoidDst)
			checkOperand(instr.A, false)
			checkOperand(instr.B, false)
			for _, arg := range instr.Args {
				checkOperand(arg, false)
			}

			switch instr.Op {
			case bytecode.Label:
				labels[instr.Target] = true
			case bytecode.Goto, bytecode.GotoIfZero, bytecode.GotoIfNotZero:
				referenced[instr.Target] = true
			}
		}

		for target := range referenced {
			if !labels[target] {
				t.Fatalf("%s: Goto* references label %d which is never emitted", fn.Name, target)
			}
		}
	}
}

// A string literal is interned once per occurrence, with a generated
// `.str_N` name.
func TestStringInterning(t *testing.T) {
	bc := lower(t, `fn main() { print("hi\n", 3); };`)
	if len(bc.Symbols) != 1 {
		t.Fatalf("expected 1 interned string, got %d", len(bc.Symbols))
	}
	if bc.Symbols[0].Name != ".str_0" {
		t.Fatalf("expected generated name '.str_0', got %q", bc.Symbols[0].Name)
	}
	if string(bc.Symbols[0].Bytes) != "hi\n" {
		t.Fatalf("expected decoded bytes 'hi\\n', got %q", bc.Symbols[0].Bytes)
	}
}

// A function with no explicit return type still gets a final Mov into
// ReturnValue when its body yields a non-Void result.
func TestImplicitReturnMovesIntoReturnValue(t *testing.T) {
	bc := lower(t, "fn main() { let i: U64 = 0; i; };")
	fn := findFunc(t, bc, "main")

	last := fn.Code[len(fn.Code)-1]
	if last.Op != bytecode.Mov || last.Dst.Kind != bytecode.ArgReturnValue {
		t.Fatalf("expected the last instruction to Mov into ReturnValue, got %+v", last)
	}
}

// The lowered instruction stream for a trivial arithmetic function is
// exactly the sequence spec.md §4.F describes: parameter operands are
// used in place, the lhs is moved into a fresh register and the rhs is
// accumulated into it. Structural equality on the whole
// slice is noisy to hand-write as field-by-field assertions, so this
// uses cmp.Diff the way a compiler test over small struct trees
// typically would.
func TestAddLoweringIsExact(t *testing.T) {
	bc := lower(t, "fn add(a: U64, b: U64): U64 { a + b; };")
	fn := findFunc(t, bc, "add")

	want := []bytecode.Instruction{
		{Op: bytecode.Mov, Dst: bytecode.NewRegister(0), A: bytecode.NewArgument(0)},
		{Op: bytecode.Add, Dst: bytecode.NewRegister(0), A: bytecode.NewArgument(1)},
		{Op: bytecode.Mov, Dst: bytecode.ReturnValue, A: bytecode.NewRegister(0)},
	}

	if diff := cmp.Diff(want, fn.Code); diff != "" {
		t.Fatalf("unexpected instruction stream (-want +got):\n%s", diff)
	}
}
