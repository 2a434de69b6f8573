// Package bytecode defines the linear IR the lowering pass builds from a
// type-checked AST, and that the NASM emitter consumes. The opcode
// vocabulary here plays the same role the teacher's instructions package
// played for its RPN stack machine - the shared vocabulary between the
// builder that emits it and the generator that consumes it - generalized
// from a flat stack of arithmetic ops to a register/label/call IR.
package bytecode

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/go-imp/impc/types"
)

// OpCode names one instruction in the IR.
type OpCode int

// The exhaustive opcode vocabulary.
const (
	Mov OpCode = iota
	Add
	Sub
	Mul
	Div
	Mod
	Not
	Negate
	Ref
	Deref
	DerefMov
	SetIfEqual
	SetIfNotEqual
	SetIfGreater
	SetIfLess
	SetIfGreaterOrEqual
	SetIfLessOrEqual
	Label
	Goto
	GotoIfZero
	GotoIfNotZero
	Call
)

func (op OpCode) String() string {
	switch op {
	case Mov:
		return "Mov"
	case Add:
		return "Add"
	case Sub:
		return "Sub"
	case Mul:
		return "Mul"
	case Div:
		return "Div"
	case Mod:
		return "Mod"
	case Not:
		return "Not"
	case Negate:
		return "Negate"
	case Ref:
		return "Ref"
	case Deref:
		return "Deref"
	case DerefMov:
		return "DerefMov"
	case SetIfEqual:
		return "SetIfEqual"
	case SetIfNotEqual:
		return "SetIfNotEqual"
	case SetIfGreater:
		return "SetIfGreater"
	case SetIfLess:
		return "SetIfLess"
	case SetIfGreaterOrEqual:
		return "SetIfGreaterOrEqual"
	case SetIfLessOrEqual:
		return "SetIfLessOrEqual"
	case Label:
		return "Label"
	case Goto:
		return "Goto"
	case GotoIfZero:
		return "GotoIfZero"
	case GotoIfNotZero:
		return "GotoIfNotZero"
	case Call:
		return "Call"
	}
	return fmt.Sprintf("OpCode(%d)", int(op))
}

// ArgKind discriminates the cases of Argument.
type ArgKind int

const (
	ArgRegister ArgKind = iota
	ArgArgument
	ArgConstant
	ArgSymbol
	ArgReturnValue
	ArgVoidRegister
)

// Argument is the tagged union of IR operands: a register slot, a
// callee-parameter slot, an immediate constant, the address of a static
// datum or function, the caller-provided return slot, or VoidRegister - a
// sentinel marking a dropped Void result that must never reach the
// emitter.
type Argument struct {
	Kind ArgKind

	// Index is the register or argument id, meaningful for ArgRegister
	// and ArgArgument.
	Index int

	// Value is the immediate payload of an ArgConstant.
	Value uint64

	// Name is the symbol name of an ArgSymbol.
	Name string

	// DataType is meaningful for ArgConstant and ArgSymbol, whose type
	// isn't otherwise recorded anywhere (register and argument types
	// live in the owning Function's slices instead).
	DataType types.DataType
}

// NewRegister builds a reference to register slot id.
func NewRegister(id int) Argument { return Argument{Kind: ArgRegister, Index: id} }

// NewArgument builds a reference to parameter slot id.
func NewArgument(id int) Argument { return Argument{Kind: ArgArgument, Index: id} }

// NewConstant builds an immediate value of type dt.
func NewConstant(value uint64, dt types.DataType) Argument {
	return Argument{Kind: ArgConstant, Value: value, DataType: dt}
}

// NewSymbol builds a reference to a static datum or function by name.
func NewSymbol(name string, dt types.DataType) Argument {
	return Argument{Kind: ArgSymbol, Name: name, DataType: dt}
}

// ReturnValue is the caller-provided return slot.
var ReturnValue = Argument{Kind: ArgReturnValue}

// VoidRegister is the sentinel result of a Void-typed expression. It must
// never be emitted as an operand.
var VoidRegister = Argument{Kind: ArgVoidRegister}

// Instruction is one IR opcode and its operands. Which fields are
// meaningful depends on Op:
//
//	Mov                   Dst, A (A is the source)
//	Add..Mod              Dst, A (accumulate: Dst += A)
//	Not, Negate, Ref, Deref Dst, A (A is the operand)
//	DerefMov              Dst (pointer), A (value to store)
//	SetIf*                Dst, A, B (Dst = A <op> B)
//	Label, Goto           Target
//	GotoIfZero/NotZero    A (condition), Target
//	Call                  Dst, A (callee), Args
type Instruction struct {
	Op     OpCode
	Dst    Argument
	A      Argument
	B      Argument
	Target int
	Args   []Argument
}

// Function is one lowered function: its register and argument type
// lists, its linear instruction stream, and the layout math §4.F and the
// emitter both need.
type Function struct {
	Name          string
	RegisterTypes []types.DataType
	ArgumentTypes []types.DataType
	ReturnType    types.DataType
	Code          []Instruction
}

// sizeAligned is the lo.SumBy iteratee shared by the layout functions
// below: each slot's aligned byte size.
func sizeAligned(t types.DataType) int { return t.SizeAligned() }

// RegisterPosition returns the byte offset of register i below the saved
// base pointer, relative to the start of the register area:
// Σ_{j<i} aligned(register_size(j)).
func (f *Function) RegisterPosition(i int) int {
	return lo.SumBy(f.RegisterTypes[:i], sizeAligned)
}

// ArgumentPosition returns the byte offset of argument i within the
// parameter area: Σ_{j<i} aligned(argument_size(j)).
func (f *Function) ArgumentPosition(i int) int {
	return lo.SumBy(f.ArgumentTypes[:i], sizeAligned)
}

// StackSize is the function's frame size: Σ aligned(register_size(i)).
func (f *Function) StackSize() int {
	return lo.SumBy(f.RegisterTypes, sizeAligned)
}

// ArgumentsSize is the total size of the parameter area: Σ aligned
// argument sizes.
func (f *Function) ArgumentsSize() int {
	return lo.SumBy(f.ArgumentTypes, sizeAligned)
}

// StringSymbol is one entry in ByteCode.Symbols: a static datum emitted
// into the data section.
type StringSymbol struct {
	Name  string
	Bytes []byte
}

// ByteCode is the complete lowered program: every function and every
// interned string literal.
type ByteCode struct {
	Functions []*Function
	Symbols   []StringSymbol
}
