// Package ast defines the syntax tree the parser builds and the type
// inferencer annotates. Every concrete node type carries its own resolved
// types.DataType, set once by phase E and read by every phase after it.
package ast

import (
	"github.com/go-imp/impc/symbols"
	"github.com/go-imp/impc/token"
	"github.com/go-imp/impc/types"
)

// Node is implemented by every concrete AST node. Operator is only
// implemented where it matters (only inference and lowering need to
// distinguish node kinds, by way of a type switch).
type Node interface {
	DataType() types.DataType
	SetDataType(types.DataType)
}

// typed is embedded by every node to supply the DataType accessor pair.
type typed struct {
	dt types.DataType
}

func (t *typed) DataType() types.DataType     { return t.dt }
func (t *typed) SetDataType(d types.DataType) { t.dt = d }

// Leaf wraps a single token: an identifier, an integer/string/boolean
// literal.
type Leaf struct {
	typed
	Token token.Token
}

// Prefix is a unary operator applied to an operand: `- x`, `! x`, `# x`,
// `@ x`.
type Prefix struct {
	typed
	Operator token.Token
	Operand  Node
}

// Infix is a binary operator applied to two operands.
type Infix struct {
	typed
	Operator token.Token
	Left     Node
	Right    Node
}

// Assign is `lhs = rhs;`. Its own DataType is always Void.
type Assign struct {
	typed
	Left  Node
	Right Node
}

// Block is a `{ ... }` group of `;`-terminated statements. Its DataType
// is that of its final statement, or Void for an empty block.
type Block struct {
	typed
	Statements []Node
	ScopeID    symbols.ScopeID
}

// Declaration is `let NAME : TYPE [= EXPR] ;`, or (when HasArgument is
// true) a function parameter bound to ArgumentIndex instead of a
// register slot.
type Declaration struct {
	typed
	Name          string
	DeclaredType  types.DataType
	HasArgument   bool
	ArgumentIndex int
	Init          Node // nilable
}

// FunctionDeclaration is `fn NAME ( PARAMS ) [: TYPE] BLOCK`. When the
// return-type annotation is omitted, HasReturnType is false and
// ReturnType is filled in by phase E from the body's tail expression
// instead of being forced to Void.
type FunctionDeclaration struct {
	typed
	Name          string
	ScopeID       symbols.ScopeID
	ReturnType    types.DataType
	HasReturnType bool
	Parameters    []*Declaration
	Body          *Block
}

// IfStatement is `if COND BLOCK [else BLOCK]`.
type IfStatement struct {
	typed
	Condition Node
	Then      *Block
	Else      *Block // nilable
}

// WhileLoop is `while COND BLOCK`.
type WhileLoop struct {
	typed
	Condition Node
	Body      *Block
}

// Call is `CALLEE ( ARGS )`.
type Call struct {
	typed
	Callee    Node
	Arguments []Node
}

// IsLvalue reports whether n denotes an addressable location: an
// identifier, or a dereference expression (`@p`).
func IsLvalue(n Node) bool {
	switch v := n.(type) {
	case *Leaf:
		return v.Token.Kind == token.IDENT
	case *Prefix:
		return v.Operator.Kind == token.AT
	default:
		return false
	}
}
