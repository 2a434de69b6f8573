// Package codegen emits freestanding x86-64 NASM assembly from a lowered
// bytecode.ByteCode. It plays the role the teacher's generator.go played
// for its RPN stack machine - one method per opcode, building up a single
// text buffer - generalized from a floating-point stack machine emitting
// x87 instructions to a register-windowed ABI emitting general-purpose
// integer instructions.
//
// Grounded on original_source/src/nasm.rs: operand addressing, the fixed
// print/_start routines, and the register-name tables are transcribed
// from there, not invented.
package codegen

import (
	"fmt"
	"strings"

	"github.com/go-imp/impc/bytecode"
	"github.com/go-imp/impc/cerrors"
	"github.com/go-imp/impc/types"
)

// printRoutine is the fixed implementation of the reserved print(String,
// U64) builtin: a single write(2) syscall to file descriptor 1. Its
// argument layout follows the same [rbp + N] convention as any other
// two-argument function: the second argument (the length) sits nearer
// rbp than the first (the pointer), since arguments are pushed first to
// last and argument_position counts from the first.
const printRoutine = `print:
    enter 0, 0
    mov rax, 1
    mov rdi, 1
    mov rsi, [rbp + 24]
    mov rdx, [rbp + 16]
    syscall
    leave
    ret
`

// entryRoutine is the process entry point: it calls the user's main and
// exits with main's return value as the process status. The leading
// `sub rsp, 8` reserves the 8-byte return slot main writes its result
// into; `pop rdi` reads that slot back as the exit status.
//
// When debug is set, an `int3` breakpoint trap is inserted ahead of the
// call, the literal assembly-level rendition of the teacher's own -debug
// flag (which inserted `int 03` into its generated output).
func entryRoutine(debug bool) string {
	trap := ""
	if debug {
		trap = "    int3\n"
	}
	return "_start:\n" + trap + `    sub rsp, 8
    call @main
    mov rax, 60
    pop rdi
    syscall
`
}

// builtins are the reserved routine names that are emitted without an
// `@` prefix; every other function name is user-defined.
var builtins = map[string]bool{
	"print": true,
}

// nasmRegister names one general-purpose register across its four
// operand widths: byte, word, dword, qword.
type nasmRegister struct {
	names [4]string
}

var (
	regRax = nasmRegister{[4]string{"al", "ax", "eax", "rax"}}
	regRbx = nasmRegister{[4]string{"bl", "bx", "ebx", "rbx"}}
	regRdx = nasmRegister{[4]string{"dl", "dx", "edx", "rdx"}}
)

// sizeIndex maps a byte width to the slot in nasmRegister.names.
func sizeIndex(size int) int {
	switch size {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		panic(fmt.Sprintf("codegen: invalid operand size %d", size))
	}
}

func (r nasmRegister) generate(dt types.DataType) string {
	return r.names[sizeIndex(dt.Size())]
}

// dataTypeKeyword returns the NASM size keyword (byte/word/dword/qword)
// for dt's width.
func dataTypeKeyword(dt types.DataType) string {
	switch dt.Size() {
	case 1:
		return "byte"
	case 2:
		return "word"
	case 4:
		return "dword"
	case 8:
		return "qword"
	default:
		panic(fmt.Sprintf("codegen: invalid operand size %d", dt.Size()))
	}
}

// generator accumulates the emitted assembly text for one compilation.
type generator struct {
	buf strings.Builder
}

// Generate renders bc as a complete NASM source file. debug inserts a
// breakpoint trap ahead of the call to main.
func Generate(bc *bytecode.ByteCode, debug bool) (string, error) {
	g := &generator{}

	g.buf.WriteString("[BITS 64]\nglobal _start\nsection .text\n")
	g.buf.WriteString(printRoutine)
	g.buf.WriteString(entryRoutine(debug))

	for _, fn := range bc.Functions {
		if err := g.generateFunction(fn); err != nil {
			return "", err
		}
	}

	g.buf.WriteString("section .data\n")
	for _, sym := range bc.Symbols {
		g.generateSymbol(sym)
	}

	return g.buf.String(), nil
}

func (g *generator) generateFunction(fn *bytecode.Function) error {
	name := fn.Name
	if !builtins[name] {
		name = "@" + name
	}
	fmt.Fprintf(&g.buf, "%s:\n    enter %d, 0\n", name, fn.StackSize())

	for _, instr := range fn.Code {
		if err := g.generateInstruction(fn, instr); err != nil {
			return err
		}
	}

	g.buf.WriteString("    leave\n    ret\n")
	return nil
}

func (g *generator) generateSymbol(sym bytecode.StringSymbol) {
	parts := make([]string, len(sym.Bytes))
	for i, b := range sym.Bytes {
		parts[i] = fmt.Sprintf("%d", b)
	}
	if len(parts) == 0 {
		parts = []string{"0"}
	}
	fmt.Fprintf(&g.buf, "%s: db %s\n", sym.Name, strings.Join(parts, ", "))
}

// argType resolves the DataType an Argument carries within fn, the
// lookup table generate_argument's Rust counterpart reads inline from
// `function.argument_data_type`.
func argType(fn *bytecode.Function, a bytecode.Argument) types.DataType {
	switch a.Kind {
	case bytecode.ArgReturnValue:
		return fn.ReturnType
	case bytecode.ArgRegister:
		return fn.RegisterTypes[a.Index]
	case bytecode.ArgArgument:
		return fn.ArgumentTypes[a.Index]
	case bytecode.ArgConstant, bytecode.ArgSymbol:
		return a.DataType
	default:
		panic("codegen: VoidRegister has no data type")
	}
}

// generateArgument renders a as an operand: a memory reference for
// stack-resident operands, a bare literal for constants, a bare name for
// symbols.
func (g *generator) generateArgument(fn *bytecode.Function, a bytecode.Argument) (string, error) {
	switch a.Kind {
	case bytecode.ArgReturnValue:
		offset := 8 + fn.ArgumentsSize() + fn.ReturnType.SizeAligned()
		return fmt.Sprintf("%s [rbp + %d]", dataTypeKeyword(fn.ReturnType), offset), nil
	case bytecode.ArgRegister:
		offset := 8 + fn.RegisterPosition(a.Index)
		return fmt.Sprintf("%s [rbp - %d]", dataTypeKeyword(fn.RegisterTypes[a.Index]), offset), nil
	case bytecode.ArgArgument:
		offset := 8 + fn.ArgumentsSize() - fn.ArgumentPosition(a.Index)
		return fmt.Sprintf("%s [rbp + %d]", dataTypeKeyword(fn.ArgumentTypes[a.Index]), offset), nil
	case bytecode.ArgConstant:
		return fmt.Sprintf("%d", a.Value), nil
	case bytecode.ArgSymbol:
		name := a.Name
		if a.DataType.Kind == types.Function && !builtins[name] {
			name = "@" + name
		}
		return name, nil
	default:
		return "", cerrors.Wrap(cerrors.Internal{Detail: "codegen: VoidRegister reached the emitter"})
	}
}

// isMemoryOperand reports whether a is a Register or Argument slot - the
// two kinds that compile to a memory reference and so can't be used as
// the source of a mem-to-mem instruction without first staging through a
// register.
func isMemoryOperand(a bytecode.Argument) bool {
	return a.Kind == bytecode.ArgRegister || a.Kind == bytecode.ArgArgument
}

// argEqual reports whether two Arguments denote the same operand. It's
// used only to skip emitting a no-op `mov x, x`, so a straightforward
// field comparison (rather than full DataType equality) is enough.
func argEqual(a, b bytecode.Argument) bool {
	return a.Kind == b.Kind && a.Index == b.Index && a.Value == b.Value && a.Name == b.Name
}

func (g *generator) generateInstruction(fn *bytecode.Function, instr bytecode.Instruction) error {
	switch instr.Op {
	case bytecode.Mov:
		if argEqual(instr.Dst, instr.A) {
			return nil
		}
		return g.generateInfix(fn, instr.Dst, instr.A, "mov")
	case bytecode.Add:
		return g.generateInfix(fn, instr.Dst, instr.A, "add")
	case bytecode.Sub:
		return g.generateInfix(fn, instr.Dst, instr.A, "sub")
	case bytecode.Mul:
		return g.generateMul(fn, instr.Dst, instr.A)
	case bytecode.Div:
		return g.generateDivMod(fn, instr.Dst, instr.A, "rax")
	case bytecode.Mod:
		return g.generateDivMod(fn, instr.Dst, instr.A, "rdx")
	case bytecode.Not:
		return g.generateNot(fn, instr.Dst)
	case bytecode.Negate:
		return g.generateNegate(fn, instr.Dst)
	case bytecode.Ref:
		return g.generateRef(fn, instr.Dst, instr.A)
	case bytecode.Deref:
		return g.generateDeref(fn, instr.Dst, instr.A)
	case bytecode.DerefMov:
		return g.generateDerefMov(fn, instr.Dst, instr.A)
	case bytecode.SetIfEqual:
		return g.generateComparison(fn, instr.Dst, instr.A, instr.B, "sete")
	case bytecode.SetIfNotEqual:
		return g.generateComparison(fn, instr.Dst, instr.A, instr.B, "setne")
	case bytecode.SetIfGreater:
		return g.generateComparison(fn, instr.Dst, instr.A, instr.B, "setg")
	case bytecode.SetIfLess:
		return g.generateComparison(fn, instr.Dst, instr.A, instr.B, "setl")
	case bytecode.SetIfGreaterOrEqual:
		return g.generateComparison(fn, instr.Dst, instr.A, instr.B, "setge")
	case bytecode.SetIfLessOrEqual:
		return g.generateComparison(fn, instr.Dst, instr.A, instr.B, "setle")
	case bytecode.Label:
		fmt.Fprintf(&g.buf, ".L%d:\n", instr.Target)
		return nil
	case bytecode.Goto:
		fmt.Fprintf(&g.buf, "    jmp .L%d\n", instr.Target)
		return nil
	case bytecode.GotoIfZero:
		return g.generateGotoIf(fn, instr.A, instr.Target, "jz")
	case bytecode.GotoIfNotZero:
		return g.generateGotoIf(fn, instr.A, instr.Target, "jnz")
	case bytecode.Call:
		return g.generateCall(fn, instr)
	default:
		return cerrors.Wrap(cerrors.Internal{Detail: fmt.Sprintf("codegen: unhandled opcode %s", instr.Op)})
	}
}

func (g *generator) generateInfix(fn *bytecode.Function, dst, src bytecode.Argument, op string) error {
	rax := regRax.generate(argType(fn, dst))

	srcText, err := g.generateArgument(fn, src)
	if err != nil {
		return err
	}
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}

	if !isMemoryOperand(src) {
		fmt.Fprintf(&g.buf, "    %s %s, %s\n", op, dstText, srcText)
	} else {
		fmt.Fprintf(&g.buf, "    mov %s, %s\n    %s %s, %s\n", rax, srcText, op, dstText, rax)
	}
	return nil
}

func (g *generator) generateMul(fn *bytecode.Function, dst, src bytecode.Argument) error {
	dt := argType(fn, dst)
	rax := regRax.generate(dt)
	rbx := regRbx.generate(dt)

	srcText, err := g.generateArgument(fn, src)
	if err != nil {
		return err
	}
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}

	fmt.Fprintf(&g.buf, "    mov %s, %s\n    mov %s, %s\n    mul %s\n    mov %s, %s\n",
		rax, dstText, rbx, srcText, rbx, dstText, rax)
	return nil
}

// generateDivMod implements Div and Mod. Both run an unsigned divide at
// the destination's width, zeroing the same-width part of rdx ahead of
// it; Div keeps the quotient (rax), Mod keeps the remainder (rdx) -
// result selects which.
func (g *generator) generateDivMod(fn *bytecode.Function, dst, src bytecode.Argument, result string) error {
	dt := argType(fn, dst)
	rax := regRax.generate(dt)
	rbx := regRbx.generate(dt)
	rdx := regRdx.generate(dt)

	srcText, err := g.generateArgument(fn, src)
	if err != nil {
		return err
	}
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}

	resultReg := rax
	if result == "rdx" {
		resultReg = rdx
	}

	fmt.Fprintf(&g.buf, "    xor %s, %s\n    mov %s, %s\n    mov %s, %s\n    div %s\n    mov %s, %s\n",
		rdx, rdx, rax, dstText, rbx, srcText, rbx, dstText, resultReg)
	return nil
}

func (g *generator) generateNot(fn *bytecode.Function, dst bytecode.Argument) error {
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "    and %s, 0x1\n    xor %s, 0x1\n", dstText, dstText)
	return nil
}

func (g *generator) generateNegate(fn *bytecode.Function, dst bytecode.Argument) error {
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "    neg %s\n", dstText)
	return nil
}

func (g *generator) generateRef(fn *bytecode.Function, dst, src bytecode.Argument) error {
	rax := regRax.generate(argType(fn, dst))

	srcText, err := g.generateArgument(fn, src)
	if err != nil {
		return err
	}
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}

	fmt.Fprintf(&g.buf, "    lea %s, %s\n    mov %s, %s\n", rax, srcText, dstText, rax)
	return nil
}

func (g *generator) generateDeref(fn *bytecode.Function, dst, src bytecode.Argument) error {
	rax := regRax.generate(argType(fn, src))
	rbx := regRbx.generate(argType(fn, dst))

	srcText, err := g.generateArgument(fn, src)
	if err != nil {
		return err
	}
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}

	fmt.Fprintf(&g.buf, "    mov %s, %s\n    mov %s, [%s]\n    mov %s, %s\n", rax, srcText, rbx, rax, dstText, rbx)
	return nil
}

func (g *generator) generateDerefMov(fn *bytecode.Function, dst, src bytecode.Argument) error {
	rax := regRax.generate(argType(fn, src))
	rbx := regRbx.generate(argType(fn, dst))

	srcText, err := g.generateArgument(fn, src)
	if err != nil {
		return err
	}
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}

	fmt.Fprintf(&g.buf, "    mov %s, %s\n    mov %s, %s\n    mov [%s], %s\n", rax, dstText, rbx, srcText, rax, rbx)
	return nil
}

func (g *generator) generateComparison(fn *bytecode.Function, dst, lhs, rhs bytecode.Argument, set string) error {
	rax := regRax.generate(argType(fn, lhs))

	lhsText, err := g.generateArgument(fn, lhs)
	if err != nil {
		return err
	}
	rhsText, err := g.generateArgument(fn, rhs)
	if err != nil {
		return err
	}
	dstText, err := g.generateArgument(fn, dst)
	if err != nil {
		return err
	}

	fmt.Fprintf(&g.buf, "    mov %s, %s\n    cmp %s, %s\n    %s %s\n", rax, lhsText, rax, rhsText, set, dstText)
	return nil
}

func (g *generator) generateGotoIf(fn *bytecode.Function, cond bytecode.Argument, target int, jump string) error {
	rax := regRax.generate(argType(fn, cond))

	condText, err := g.generateArgument(fn, cond)
	if err != nil {
		return err
	}

	fmt.Fprintf(&g.buf, "    mov %s, %s\n    test %s, %s\n    %s .L%d\n", rax, condText, rax, rax, jump, target)
	return nil
}

func (g *generator) generateCall(fn *bytecode.Function, instr bytecode.Instruction) error {
	calleeType := argType(fn, instr.A)
	if calleeType.Kind != types.Function {
		return cerrors.Wrap(cerrors.Internal{Detail: "codegen: Call operand A is not a function"})
	}

	calleeText, err := g.generateArgument(fn, instr.A)
	if err != nil {
		return err
	}

	var dstText string
	voidReturn := calleeType.Return.Kind == types.Void
	if !voidReturn {
		dstText, err = g.generateArgument(fn, instr.Dst)
		if err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "    push %s\n", dstText)
	}

	argsSize := 0
	for _, arg := range instr.Args {
		dt := argType(fn, arg)
		argsSize += dt.SizeAligned()

		rax := regRax.generate(dt)
		argText, err := g.generateArgument(fn, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "    mov %s, %s\n    push rax\n", rax, argText)
	}

	if instr.A.Kind == bytecode.ArgSymbol {
		fmt.Fprintf(&g.buf, "    call %s\n", calleeText)
	} else {
		rax := regRax.generate(calleeType)
		fmt.Fprintf(&g.buf, "    mov %s, %s\n    call %s\n", rax, calleeText, rax)
	}

	fmt.Fprintf(&g.buf, "    add rsp, %d\n", argsSize)

	if !voidReturn {
		fmt.Fprintf(&g.buf, "    pop %s\n", dstText)
	}
	return nil
}
