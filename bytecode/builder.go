package bytecode

import (
	"fmt"

	"github.com/go-imp/impc/ast"
	"github.com/go-imp/impc/cerrors"
	"github.com/go-imp/impc/token"
	"github.com/go-imp/impc/types"
)

// env is the builder's own flat, block-scoped name -> slot map. It
// mirrors the parser's symbol-table scoping locally, but maps names to
// already-allocated IR slots (registers or argument indices) rather than
// to declared types - a mapping that only exists once lowering is under
// way, so it cannot live in symbols.Table.
type env struct {
	vars   map[string]Argument
	parent *env
}

func (e *env) lookup(name string) (Argument, bool) {
	for s := e; s != nil; s = s.parent {
		if a, ok := s.vars[name]; ok {
			return a, true
		}
	}
	return Argument{}, false
}

// Build lowers every function declaration in statements into a ByteCode.
// Non-function top-level statements have no execution context to run in
// - the only entry point this language defines is @main - so encountering
// one is an internal error rather than a silently-dropped no-op.
func Build(statements []ast.Node) (*ByteCode, error) {
	bc := &ByteCode{}
	for _, stmt := range statements {
		fn, ok := stmt.(*ast.FunctionDeclaration)
		if !ok {
			return nil, cerrors.Wrap(cerrors.Internal{Detail: "bytecode: top-level statement outside any function"})
		}
		if err := buildFunction(bc, fn); err != nil {
			return nil, err
		}
	}
	return bc, nil
}

func buildFunction(bc *ByteCode, fn *ast.FunctionDeclaration) error {
	f := &Function{Name: fn.Name, ReturnType: fn.ReturnType}

	root := &env{vars: map[string]Argument{}}
	for i, p := range fn.Parameters {
		f.ArgumentTypes = append(f.ArgumentTypes, p.DeclaredType)
		root.vars[p.Name] = NewArgument(i)
	}

	fb := &funcBuilder{bc: bc, fn: f, env: root}

	result, err := fb.lowerBlock(fn.Body)
	if err != nil {
		return err
	}

	if fn.ReturnType.Kind != types.Void {
		fb.emit(Instruction{Op: Mov, Dst: ReturnValue, A: result})
	}

	bc.Functions = append(bc.Functions, f)
	return nil
}

// funcBuilder lowers a single function's body.
type funcBuilder struct {
	bc           *ByteCode
	fn           *Function
	env          *env
	labelCounter int
}

func (fb *funcBuilder) emit(instr Instruction) {
	fb.fn.Code = append(fb.fn.Code, instr)
}

func (fb *funcBuilder) newRegister(dt types.DataType) Argument {
	id := len(fb.fn.RegisterTypes)
	fb.fn.RegisterTypes = append(fb.fn.RegisterTypes, dt)
	return NewRegister(id)
}

func (fb *funcBuilder) newLabel() int {
	id := fb.labelCounter
	fb.labelCounter++
	return id
}

func (fb *funcBuilder) pushScope() { fb.env = &env{vars: map[string]Argument{}, parent: fb.env} }
func (fb *funcBuilder) popScope()  { fb.env = fb.env.parent }

func (fb *funcBuilder) bind(name string, arg Argument) { fb.env.vars[name] = arg }

func (fb *funcBuilder) internString(s string) string {
	name := fmt.Sprintf(".str_%d", len(fb.bc.Symbols))
	fb.bc.Symbols = append(fb.bc.Symbols, StringSymbol{Name: name, Bytes: []byte(s)})
	return name
}

// lower dispatches on n's concrete type, emitting whatever instructions
// its value requires and returning the Argument holding the result
// (VoidRegister for a Void-typed expression).
func (fb *funcBuilder) lower(n ast.Node) (Argument, error) {
	switch v := n.(type) {
	case *ast.Leaf:
		return fb.lowerLeaf(v)
	case *ast.Prefix:
		return fb.lowerPrefix(v)
	case *ast.Infix:
		return fb.lowerInfix(v)
	case *ast.Assign:
		return fb.lowerAssign(v)
	case *ast.Block:
		return fb.lowerBlock(v)
	case *ast.Declaration:
		return fb.lowerDeclaration(v)
	case *ast.IfStatement:
		return fb.lowerIf(v)
	case *ast.WhileLoop:
		return fb.lowerWhile(v)
	case *ast.Call:
		return fb.lowerCall(v)
	default:
		return Argument{}, cerrors.Wrap(cerrors.Internal{Detail: fmt.Sprintf("bytecode: unhandled node %T", n)})
	}
}

func (fb *funcBuilder) lowerLeaf(l *ast.Leaf) (Argument, error) {
	switch l.Token.Kind {
	case token.NUMBER:
		dst := fb.newRegister(l.DataType())
		fb.emit(Instruction{Op: Mov, Dst: dst, A: NewConstant(l.Token.IntValue, l.DataType())})
		return dst, nil

	case token.TRUE, token.FALSE:
		v := uint64(0)
		if l.Token.Kind == token.TRUE {
			v = 1
		}
		dst := fb.newRegister(types.TBool)
		fb.emit(Instruction{Op: Mov, Dst: dst, A: NewConstant(v, types.TBool)})
		return dst, nil

	case token.STRING:
		name := fb.internString(l.Token.StrValue)
		dst := fb.newRegister(l.DataType())
		fb.emit(Instruction{Op: Mov, Dst: dst, A: NewSymbol(name, l.DataType())})
		return dst, nil

	case token.IDENT:
		if arg, ok := fb.env.lookup(l.Token.Literal); ok {
			return arg, nil
		}
		// Not a parameter or a local: a function name, resolved by
		// symbol rather than by slot (the reserved built-ins and every
		// user-defined function live in assembly by name, not in any
		// function's register file).
		if l.DataType().Kind == types.Function {
			return NewSymbol(l.Token.Literal, l.DataType()), nil
		}
		return Argument{}, cerrors.Wrap(cerrors.Internal{Detail: "bytecode: unresolved identifier " + l.Token.Literal})
	}

	return Argument{}, cerrors.Wrap(cerrors.Internal{Detail: "bytecode: unexpected leaf token kind " + string(l.Token.Kind)})
}

func (fb *funcBuilder) lowerPrefix(p *ast.Prefix) (Argument, error) {
	src, err := fb.lower(p.Operand)
	if err != nil {
		return Argument{}, err
	}

	var op OpCode
	switch p.Operator.Kind {
	case token.BANG:
		op = Not
	case token.MINUS:
		op = Negate
	case token.HASH:
		op = Ref
	case token.AT:
		op = Deref
	default:
		return Argument{}, cerrors.Wrap(cerrors.Internal{Detail: "bytecode: unexpected prefix operator " + string(p.Operator.Kind)})
	}

	dst := fb.newRegister(p.DataType())
	fb.emit(Instruction{Op: op, Dst: dst, A: src})
	return dst, nil
}

func (fb *funcBuilder) lowerInfix(in *ast.Infix) (Argument, error) {
	lhs, err := fb.lower(in.Left)
	if err != nil {
		return Argument{}, err
	}
	rhs, err := fb.lower(in.Right)
	if err != nil {
		return Argument{}, err
	}

	if op, ok := arithmeticOp(in.Operator.Kind); ok {
		dst := fb.newRegister(in.DataType())
		fb.emit(Instruction{Op: Mov, Dst: dst, A: lhs})
		fb.emit(Instruction{Op: op, Dst: dst, A: rhs})
		return dst, nil
	}

	if op, ok := comparisonOp(in.Operator.Kind); ok {
		dst := fb.newRegister(types.TBool)
		fb.emit(Instruction{Op: op, Dst: dst, A: lhs, B: rhs})
		return dst, nil
	}

	return Argument{}, cerrors.Wrap(cerrors.Internal{Detail: "bytecode: unexpected infix operator " + string(in.Operator.Kind)})
}

func arithmeticOp(k token.Kind) (OpCode, bool) {
	switch k {
	case token.PLUS:
		return Add, true
	case token.MINUS:
		return Sub, true
	case token.ASTERISK:
		return Mul, true
	case token.SLASH:
		return Div, true
	case token.PERCENT:
		return Mod, true
	}
	return 0, false
}

func comparisonOp(k token.Kind) (OpCode, bool) {
	switch k {
	case token.EQ:
		return SetIfEqual, true
	case token.NOT_EQ:
		return SetIfNotEqual, true
	case token.GT:
		return SetIfGreater, true
	case token.LT:
		return SetIfLess, true
	case token.GTE:
		return SetIfGreaterOrEqual, true
	case token.LTE:
		return SetIfLessOrEqual, true
	}
	return 0, false
}

func (fb *funcBuilder) lowerAssign(a *ast.Assign) (Argument, error) {
	rhs, err := fb.lower(a.Right)
	if err != nil {
		return Argument{}, err
	}

	if deref, ok := a.Left.(*ast.Prefix); ok && deref.Operator.Kind == token.AT {
		ptr, err := fb.lower(deref.Operand)
		if err != nil {
			return Argument{}, err
		}
		fb.emit(Instruction{Op: DerefMov, Dst: ptr, A: rhs})
		return VoidRegister, nil
	}

	lhs, err := fb.lower(a.Left)
	if err != nil {
		return Argument{}, err
	}
	fb.emit(Instruction{Op: Mov, Dst: lhs, A: rhs})
	return VoidRegister, nil
}

func (fb *funcBuilder) lowerBlock(block *ast.Block) (Argument, error) {
	fb.pushScope()
	defer fb.popScope()

	result := VoidRegister
	for _, stmt := range block.Statements {
		r, err := fb.lower(stmt)
		if err != nil {
			return Argument{}, err
		}
		result = r
	}
	return result, nil
}

func (fb *funcBuilder) lowerDeclaration(d *ast.Declaration) (Argument, error) {
	if d.HasArgument {
		// Parameters are bound once, in buildFunction's root scope.
		return VoidRegister, nil
	}

	dst := fb.newRegister(d.DeclaredType)
	fb.bind(d.Name, dst)

	if d.Init != nil {
		init, err := fb.lower(d.Init)
		if err != nil {
			return Argument{}, err
		}
		fb.emit(Instruction{Op: Mov, Dst: dst, A: init})
	}

	return VoidRegister, nil
}

func (fb *funcBuilder) lowerIf(stmt *ast.IfStatement) (Argument, error) {
	cond, err := fb.lower(stmt.Condition)
	if err != nil {
		return Argument{}, err
	}

	dst := VoidRegister
	if stmt.DataType().Kind != types.Void {
		dst = fb.newRegister(stmt.DataType())
	}

	if stmt.Else == nil {
		lend := fb.newLabel()
		fb.emit(Instruction{Op: GotoIfZero, A: cond, Target: lend})
		if _, err := fb.lowerBlock(stmt.Then); err != nil {
			return Argument{}, err
		}
		fb.emit(Instruction{Op: Label, Target: lend})
		return dst, nil
	}

	lelse := fb.newLabel()
	lend := fb.newLabel()

	fb.emit(Instruction{Op: GotoIfZero, A: cond, Target: lelse})
	thenVal, err := fb.lowerBlock(stmt.Then)
	if err != nil {
		return Argument{}, err
	}
	if dst.Kind != ArgVoidRegister {
		fb.emit(Instruction{Op: Mov, Dst: dst, A: thenVal})
	}
	fb.emit(Instruction{Op: Goto, Target: lend})

	fb.emit(Instruction{Op: Label, Target: lelse})
	elseVal, err := fb.lowerBlock(stmt.Else)
	if err != nil {
		return Argument{}, err
	}
	if dst.Kind != ArgVoidRegister {
		fb.emit(Instruction{Op: Mov, Dst: dst, A: elseVal})
	}

	fb.emit(Instruction{Op: Label, Target: lend})
	return dst, nil
}

func (fb *funcBuilder) lowerWhile(w *ast.WhileLoop) (Argument, error) {
	lhead := fb.newLabel()
	lend := fb.newLabel()

	fb.emit(Instruction{Op: Label, Target: lhead})
	cond, err := fb.lower(w.Condition)
	if err != nil {
		return Argument{}, err
	}
	fb.emit(Instruction{Op: GotoIfZero, A: cond, Target: lend})

	if _, err := fb.lowerBlock(w.Body); err != nil {
		return Argument{}, err
	}

	fb.emit(Instruction{Op: Goto, Target: lhead})
	fb.emit(Instruction{Op: Label, Target: lend})
	return VoidRegister, nil
}

func (fb *funcBuilder) lowerCall(call *ast.Call) (Argument, error) {
	callee, err := fb.lower(call.Callee)
	if err != nil {
		return Argument{}, err
	}

	args := make([]Argument, len(call.Arguments))
	for i, a := range call.Arguments {
		arg, err := fb.lower(a)
		if err != nil {
			return Argument{}, err
		}
		args[i] = arg
	}

	dst := VoidRegister
	if call.DataType().Kind != types.Void {
		dst = fb.newRegister(call.DataType())
	}

	fb.emit(Instruction{Op: Call, Dst: dst, A: callee, Args: args})
	return dst, nil
}
