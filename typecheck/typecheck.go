// Package typecheck implements the bidirectional type inference pass: it
// walks the AST the parser built, resolving identifiers against the
// symbol table and annotating every node with a resolved types.DataType.
//
// Inference threads a contextual "expected type" downward (nil means no
// expectation) so that polymorphic integer literals adopt the width their
// context demands, the way spec'd in the reference parser/typechecker
// this package replaces.
package typecheck

import (
	"fmt"
	"math"

	"github.com/go-imp/impc/ast"
	"github.com/go-imp/impc/cerrors"
	"github.com/go-imp/impc/symbols"
	"github.com/go-imp/impc/token"
	"github.com/go-imp/impc/types"
)

// rootScope is the file-level scope every symbols.Table starts with.
const rootScope = symbols.ScopeID(0)

// Checker carries the symbol table populated during parsing; it is not
// itself mutated, only consulted for identifier lookups.
type Checker struct {
	symbols *symbols.Table
}

// New builds a Checker over a table the parser already populated.
func New(symtab *symbols.Table) *Checker {
	return &Checker{symbols: symtab}
}

// Check type-checks every top-level statement, annotating the whole tree
// in place. It stops and returns the first error encountered.
func (c *Checker) Check(statements []ast.Node) error {
	for _, stmt := range statements {
		if fn, ok := stmt.(*ast.FunctionDeclaration); ok {
			if err := c.checkFunction(fn); err != nil {
				return err
			}
			continue
		}
		if _, err := c.infer(stmt, rootScope, nil); err != nil {
			return err
		}
	}
	return nil
}

// checkFunction type-checks a function's parameters and body. When the
// return type was written explicitly, the body's resulting type must
// match it; when it was omitted, it is instead taken from the body's
// tail expression - the only way `fn main() { fact(5); };`, with no
// annotation, can still deliver fact(5)'s value as the process exit
// status (see the end-to-end scenarios this is grounded on).
func (c *Checker) checkFunction(fn *ast.FunctionDeclaration) error {
	for _, p := range fn.Parameters {
		p.SetDataType(p.DeclaredType)
	}

	if fn.HasReturnType {
		expectedReturn := fn.ReturnType
		bodyType, err := c.inferBlock(fn.Body, &expectedReturn)
		if err != nil {
			return err
		}
		if !bodyType.Equal(fn.ReturnType) {
			return cerrors.Wrap(cerrors.TypeMismatch{Expected: fn.ReturnType, Got: bodyType})
		}
	} else {
		bodyType, err := c.inferBlock(fn.Body, nil)
		if err != nil {
			return err
		}
		fn.ReturnType = bodyType
	}

	fn.SetDataType(types.NewFunction(fn.ReturnType, paramTypes(fn.Parameters)))
	return nil
}

func paramTypes(params []*ast.Declaration) []types.DataType {
	out := make([]types.DataType, len(params))
	for i, p := range params {
		out[i] = p.DeclaredType
	}
	return out
}

// infer resolves n's type within scope, under the (possibly absent)
// contextual expectation, and records the result on n itself.
func (c *Checker) infer(n ast.Node, scope symbols.ScopeID, expected *types.DataType) (types.DataType, error) {
	switch v := n.(type) {
	case *ast.Leaf:
		return c.inferLeaf(v, scope, expected)
	case *ast.Prefix:
		return c.inferPrefix(v, scope, expected)
	case *ast.Infix:
		return c.inferInfix(v, scope, expected)
	case *ast.Assign:
		return c.inferAssign(v, scope)
	case *ast.Block:
		return c.inferBlock(v, expected)
	case *ast.Declaration:
		return c.inferDeclaration(v, scope)
	case *ast.IfStatement:
		return c.inferIf(v, scope, expected)
	case *ast.WhileLoop:
		return c.inferWhile(v, scope)
	case *ast.Call:
		return c.inferCall(v, scope)
	case *ast.FunctionDeclaration:
		if err := c.checkFunction(v); err != nil {
			return types.DataType{}, err
		}
		return types.TVoid, nil
	default:
		return types.DataType{}, cerrors.Wrap(cerrors.Internal{Detail: fmt.Sprintf("typecheck: unhandled node %T", n)})
	}
}

func (c *Checker) inferLeaf(l *ast.Leaf, scope symbols.ScopeID, expected *types.DataType) (types.DataType, error) {
	var t types.DataType

	switch l.Token.Kind {
	case token.NUMBER:
		nt, err := inferNumber(l.Token, expected)
		if err != nil {
			return types.DataType{}, err
		}
		t = nt

	case token.TRUE, token.FALSE:
		t = types.TBool

	case token.STRING:
		t = types.String

	case token.IDENT:
		v, ok := c.symbols.Lookup(scope, l.Token.Literal)
		if !ok {
			return types.DataType{}, cerrors.Wrap(cerrors.UndeclaredIdent{Name: l.Token.Literal})
		}
		t = v.DataType

	default:
		return types.DataType{}, cerrors.Wrap(cerrors.Internal{Detail: "typecheck: unexpected leaf token kind " + string(l.Token.Kind)})
	}

	l.SetDataType(t)
	return t, nil
}

// inferNumber picks the type of an integer literal: the expected integer
// type if the value fits it, otherwise the polymorphic default U64 - with
// a type error when an explicit expectation was not satisfiable.
func inferNumber(tok token.Token, expected *types.DataType) (types.DataType, error) {
	if expected != nil && expected.IsInt() {
		if fitsWidth(tok.IntValue, expected.Width, expected.Signed) {
			return *expected, nil
		}
		return types.U64, cerrors.Wrap(cerrors.TypeMismatch{Expected: *expected, Got: types.U64})
	}
	return types.U64, nil
}

func fitsWidth(value uint64, width int, signed bool) bool {
	if signed {
		if width >= 64 {
			return value <= math.MaxInt64
		}
		limit := uint64(1)<<(uint(width)-1) - 1
		return value <= limit
	}
	if width >= 64 {
		return true
	}
	limit := uint64(1)<<uint(width) - 1
	return value <= limit
}

func (c *Checker) inferPrefix(p *ast.Prefix, scope symbols.ScopeID, expected *types.DataType) (types.DataType, error) {
	switch p.Operator.Kind {
	case token.MINUS:
		operandExpected := expected
		if operandExpected != nil && (!operandExpected.IsInt() || !operandExpected.Signed) {
			operandExpected = nil
		}
		t, err := c.infer(p.Operand, scope, operandExpected)
		if err != nil {
			return types.DataType{}, err
		}
		if !t.IsInt() || !t.Signed {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: types.S64, Got: t})
		}
		p.SetDataType(t)
		return t, nil

	case token.BANG:
		t, err := c.infer(p.Operand, scope, &types.TBool)
		if err != nil {
			return types.DataType{}, err
		}
		if t.Kind != types.Bool {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: types.TBool, Got: t})
		}
		p.SetDataType(types.TBool)
		return types.TBool, nil

	case token.HASH:
		if !ast.IsLvalue(p.Operand) {
			return types.DataType{}, cerrors.Wrap(cerrors.NotAnLvalue{})
		}
		t, err := c.infer(p.Operand, scope, nil)
		if err != nil {
			return types.DataType{}, err
		}
		result := types.NewRef(t)
		p.SetDataType(result)
		return result, nil

	case token.AT:
		t, err := c.infer(p.Operand, scope, nil)
		if err != nil {
			return types.DataType{}, err
		}
		if t.Kind != types.Ref {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: types.NewRef(types.TVoid), Got: t})
		}
		result := *t.Inner
		p.SetDataType(result)
		return result, nil
	}

	return types.DataType{}, cerrors.Wrap(cerrors.Internal{Detail: "typecheck: unexpected prefix operator " + string(p.Operator.Kind)})
}

func (c *Checker) inferInfix(in *ast.Infix, scope symbols.ScopeID, expected *types.DataType) (types.DataType, error) {
	switch in.Operator.Kind {
	case token.PLUS, token.MINUS, token.ASTERISK, token.SLASH, token.PERCENT:
		lhsType, err := c.infer(in.Left, scope, expected)
		if err != nil {
			return types.DataType{}, err
		}
		if !lhsType.IsInt() {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: types.U64, Got: lhsType})
		}
		if _, err := c.infer(in.Right, scope, &lhsType); err != nil {
			return types.DataType{}, err
		}
		rhsType := in.Right.DataType()
		if !rhsType.Equal(lhsType) {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: lhsType, Got: rhsType})
		}
		in.SetDataType(lhsType)
		return lhsType, nil

	case token.EQ, token.NOT_EQ, token.GT, token.LT, token.GTE, token.LTE:
		lhsType, err := c.infer(in.Left, scope, nil)
		if err != nil {
			return types.DataType{}, err
		}
		if !lhsType.IsInt() {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: types.U64, Got: lhsType})
		}
		if _, err := c.infer(in.Right, scope, &lhsType); err != nil {
			return types.DataType{}, err
		}
		rhsType := in.Right.DataType()
		// Mixed-signedness comparisons are rejected outright, per the
		// reference implementation's own guidance on this underspecified
		// case.
		if !rhsType.IsInt() || rhsType.Signed != lhsType.Signed || rhsType.Width != lhsType.Width {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: lhsType, Got: rhsType})
		}
		in.SetDataType(types.TBool)
		return types.TBool, nil
	}

	return types.DataType{}, cerrors.Wrap(cerrors.Internal{Detail: "typecheck: unexpected infix operator " + string(in.Operator.Kind)})
}

func (c *Checker) inferAssign(a *ast.Assign, scope symbols.ScopeID) (types.DataType, error) {
	if !ast.IsLvalue(a.Left) {
		return types.DataType{}, cerrors.Wrap(cerrors.NotAnLvalue{})
	}

	leftType, err := c.infer(a.Left, scope, nil)
	if err != nil {
		return types.DataType{}, err
	}
	if _, err := c.infer(a.Right, scope, &leftType); err != nil {
		return types.DataType{}, err
	}
	rightType := a.Right.DataType()
	if !rightType.Equal(leftType) {
		return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: leftType, Got: rightType})
	}

	a.SetDataType(types.TVoid)
	return types.TVoid, nil
}

// inferBlock type-checks a block's statements in order, within the
// block's own scope. Only the final statement receives expectedTail as
// its contextual expectation; the block's resulting type is that of its
// final statement (Void for an empty block, or one ending in a
// statement form - let/assign - that is always Void).
func (c *Checker) inferBlock(block *ast.Block, expectedTail *types.DataType) (types.DataType, error) {
	last := types.TVoid

	for i, stmt := range block.Statements {
		var exp *types.DataType
		if i == len(block.Statements)-1 {
			exp = expectedTail
		}
		t, err := c.infer(stmt, block.ScopeID, exp)
		if err != nil {
			return types.DataType{}, err
		}
		last = t
	}

	block.SetDataType(last)
	return last, nil
}

func (c *Checker) inferDeclaration(d *ast.Declaration, scope symbols.ScopeID) (types.DataType, error) {
	if d.Init != nil {
		if _, err := c.infer(d.Init, scope, &d.DeclaredType); err != nil {
			return types.DataType{}, err
		}
		initType := d.Init.DataType()
		if !initType.Equal(d.DeclaredType) {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: d.DeclaredType, Got: initType})
		}
	}

	d.SetDataType(types.TVoid)
	return types.TVoid, nil
}

func (c *Checker) inferIf(stmt *ast.IfStatement, scope symbols.ScopeID, expected *types.DataType) (types.DataType, error) {
	if _, err := c.infer(stmt.Condition, scope, &types.TBool); err != nil {
		return types.DataType{}, err
	}
	condType := stmt.Condition.DataType()
	if condType.Kind != types.Bool {
		return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: types.TBool, Got: condType})
	}

	thenType, err := c.inferBlock(stmt.Then, expected)
	if err != nil {
		return types.DataType{}, err
	}

	var result types.DataType
	if stmt.Else == nil {
		result = types.TVoid
	} else {
		elseType, err := c.inferBlock(stmt.Else, &thenType)
		if err != nil {
			return types.DataType{}, err
		}
		if !elseType.Equal(thenType) {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: thenType, Got: elseType})
		}
		result = thenType
	}

	stmt.SetDataType(result)
	return result, nil
}

func (c *Checker) inferWhile(w *ast.WhileLoop, scope symbols.ScopeID) (types.DataType, error) {
	if _, err := c.infer(w.Condition, scope, &types.TBool); err != nil {
		return types.DataType{}, err
	}
	condType := w.Condition.DataType()
	if condType.Kind != types.Bool {
		return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: types.TBool, Got: condType})
	}

	if _, err := c.inferBlock(w.Body, nil); err != nil {
		return types.DataType{}, err
	}

	w.SetDataType(types.TVoid)
	return types.TVoid, nil
}

func (c *Checker) inferCall(call *ast.Call, scope symbols.ScopeID) (types.DataType, error) {
	calleeType, err := c.infer(call.Callee, scope, nil)
	if err != nil {
		return types.DataType{}, err
	}
	if calleeType.Kind != types.Function {
		return types.DataType{}, cerrors.Wrap(cerrors.NotCallable{Got: calleeType})
	}
	if len(call.Arguments) != len(calleeType.Args) {
		return types.DataType{}, cerrors.Wrap(cerrors.ArityMismatch{Expected: len(calleeType.Args), Got: len(call.Arguments)})
	}

	for i, arg := range call.Arguments {
		want := calleeType.Args[i]
		if _, err := c.infer(arg, scope, &want); err != nil {
			return types.DataType{}, err
		}
		got := arg.DataType()
		if !got.Equal(want) {
			return types.DataType{}, cerrors.Wrap(cerrors.TypeMismatch{Expected: want, Got: got})
		}
	}

	result := *calleeType.Return
	call.SetDataType(result)
	return result, nil
}
