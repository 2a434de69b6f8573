// Package parser implements a hand-written Pratt (precedence-climbing)
// parser. It consumes tokens from the lexer on demand and, as a side
// effect of parsing, populates a symbols.Table with every variable,
// parameter and function binding it encounters.
//
// Grounded on the reference implementation's parse_expr_bp/parse_statement
// structure (see original_source/src/parser.rs): lookahead is a
// checkpoint/restore of the lexer's cursor rather than a pushback buffer,
// and function names bind in their enclosing scope before their body is
// parsed, so recursive calls resolve.
package parser

import (
	"github.com/go-imp/impc/ast"
	"github.com/go-imp/impc/cerrors"
	"github.com/go-imp/impc/lexer"
	"github.com/go-imp/impc/symbols"
	"github.com/go-imp/impc/token"
	"github.com/go-imp/impc/types"
)

// Binding powers, one pair (left, right) per precedence level. Comparison
// binds loosest, unary prefix operators bind tightest; `(` as a postfix
// call operator is handled outside this table since it has no upper
// bound.
const (
	bpComparisonL     = 1
	bpComparisonR     = 2
	bpAdditiveL       = 3
	bpAdditiveR       = 4
	bpMultiplicativeL = 5
	bpMultiplicativeR = 6
	bpPrefix          = 7
)

// Program is the result of parsing a source file: its top-level
// statements (ordinarily a sequence of function declarations) and the
// symbol table populated while parsing them.
type Program struct {
	Statements []ast.Node
	Symbols    *symbols.Table
}

// Parser holds parsing state.
type Parser struct {
	lex     *lexer.Lexer
	symbols *symbols.Table
}

// registerBuiltins binds the language's reserved, non-@-prefixed routines
// into the root scope before parsing begins, so ordinary call expressions
// resolve to them without any special-cased grammar. print is the only
// one: fn(String, U64): Void, writing its first argument's first N bytes
// to stdout.
func registerBuiltins(symtab *symbols.Table) {
	print := types.NewFunction(types.TVoid, []types.DataType{types.String, types.U64})
	symtab.AddVariable("print", symbols.Variable{DataType: print})
}

// Parse tokenizes and parses src, returning the top-level program and its
// symbol table, or the first error encountered.
func Parse(src string) (*Program, error) {
	p := &Parser{
		lex:     lexer.New(src),
		symbols: symbols.New(),
	}
	registerBuiltins(p.symbols)

	var statements []ast.Node

	for {
		tok, err := p.lex.PeekToken()
		if err != nil {
			return nil, cerrors.Wrap(err)
		}
		if tok.Kind == token.EOF {
			break
		}

		stmt, err := p.parseStatement()
		if err != nil {
			return nil, cerrors.Wrap(err)
		}
		statements = append(statements, stmt)

		// A trailing `;` after a top-level statement is optional: `fn`
		// declarations are self-terminating (their body's `}` ends
		// them), but stray semicolons between top-level items are
		// tolerated.
		semi, err := p.lex.PeekToken()
		if err != nil {
			return nil, cerrors.Wrap(err)
		}
		if semi.Kind == token.SEMICOLON {
			if _, err := p.next(); err != nil {
				return nil, cerrors.Wrap(err)
			}
		}
	}

	return &Program{Statements: statements, Symbols: p.symbols}, nil
}

func (p *Parser) next() (token.Token, error) {
	tok, err := p.lex.NextToken()
	return tok, cerrors.Wrap(err)
}

func (p *Parser) peek() (token.Token, error) {
	tok, err := p.lex.PeekToken()
	return tok, cerrors.Wrap(err)
}

func (p *Parser) peekIs(kind token.Kind) (bool, error) {
	tok, err := p.peek()
	if err != nil {
		return false, err
	}
	return tok.Kind == kind, nil
}

func (p *Parser) expect(kind token.Kind) (token.Token, error) {
	tok, err := p.next()
	if err != nil {
		return token.Token{}, err
	}
	if tok.Kind != kind {
		return token.Token{}, cerrors.Wrap(cerrors.UnexpectedToken{Got: tok})
	}
	return tok, nil
}

// parseStatement parses one of the four statement forms (let, fn,
// assignment, or a bare expression) defined in spec.md's grammar table.
func (p *Parser) parseStatement() (ast.Node, error) {
	isLet, err := p.peekIs(token.LET)
	if err != nil {
		return nil, err
	}
	if isLet {
		return p.parseLetStatement(false)
	}

	isFn, err := p.peekIs(token.FUNCTION)
	if err != nil {
		return nil, err
	}
	if isFn {
		return p.parseFunctionDeclaration()
	}

	lhs, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}

	isAssign, err := p.peekIs(token.ASSIGN)
	if err != nil {
		return nil, err
	}
	if !isAssign {
		return lhs, nil
	}

	if _, err := p.next(); err != nil {
		return nil, err
	}

	rhs, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}

	return &ast.Assign{Left: lhs, Right: rhs}, nil
}

// parseLetStatement parses `let NAME : TYPE [= EXPR]`, without consuming
// a trailing `;` (the caller does that). When asParam is true this is a
// function-parameter declaration: the `let` keyword is implicit and the
// binding's ArgumentIndex is filled in by the caller.
func (p *Parser) parseLetStatement(asParam bool) (*ast.Declaration, error) {
	if !asParam {
		if _, err := p.expect(token.LET); err != nil {
			return nil, err
		}
	}

	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}

	dataType, err := p.parseDataType()
	if err != nil {
		return nil, err
	}

	var init ast.Node
	hasAssign, err := p.peekIs(token.ASSIGN)
	if err != nil {
		return nil, err
	}
	if hasAssign {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		init, err = p.parseExpr(0)
		if err != nil {
			return nil, err
		}
	}

	decl := &ast.Declaration{
		Name:         name.Literal,
		DeclaredType: dataType,
		Init:         init,
	}

	p.symbols.AddVariable(name.Literal, symbols.Variable{DataType: dataType})

	return decl, nil
}

// parseFunctionDeclaration parses `fn NAME ( PARAMS ) [: TYPE] BLOCK`,
// binding the function's name in the enclosing scope before its body is
// parsed so that recursive calls resolve.
func (p *Parser) parseFunctionDeclaration() (*ast.FunctionDeclaration, error) {
	if _, err := p.expect(token.FUNCTION); err != nil {
		return nil, err
	}

	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}

	scopeID := p.symbols.AddScope()

	var params []*ast.Declaration

	closed, err := p.peekIs(token.RPAREN)
	if err != nil {
		return nil, err
	}

	if !closed {
		// Parameters are bound into the function's own scope, so enter
		// it before parsing them.
		p.symbols.EnterScope(scopeID)
		for {
			param, err := p.parseLetStatement(true)
			if err != nil {
				p.symbols.LeaveScope()
				return nil, err
			}
			param.HasArgument = true
			param.ArgumentIndex = len(params)
			params = append(params, param)

			hasComma, err := p.peekIs(token.COMMA)
			if err != nil {
				p.symbols.LeaveScope()
				return nil, err
			}
			if !hasComma {
				break
			}
			if _, err := p.next(); err != nil {
				p.symbols.LeaveScope()
				return nil, err
			}
		}
		p.symbols.LeaveScope()
	}

	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}

	returnType := types.TVoid
	hasReturn, err := p.peekIs(token.COLON)
	if err != nil {
		return nil, err
	}
	if hasReturn {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		returnType, err = p.parseDataType()
		if err != nil {
			return nil, err
		}
	}
	// hasReturn (renamed HasReturnType below) distinguishes an omitted
	// annotation from an explicit `: Void` - the former is inferred from
	// the body's tail expression by phase E rather than forced to Void.

	argumentTypes := make([]types.DataType, len(params))
	for i, param := range params {
		argumentTypes[i] = param.DeclaredType
	}

	// Bind the function's own name in the *enclosing* scope, restoring
	// the cursor first: the function is visible to its siblings and to
	// itself, but its parameters are not visible outside its body.
	p.symbols.AddVariable(name.Literal, symbols.Variable{
		DataType: types.NewFunction(returnType, argumentTypes),
	})

	p.symbols.EnterScope(scopeID)
	body, err := p.parseBlockIn(scopeID)
	p.symbols.LeaveScope()
	if err != nil {
		return nil, err
	}

	return &ast.FunctionDeclaration{
		Name:          name.Literal,
		ScopeID:       scopeID,
		ReturnType:    returnType,
		HasReturnType: hasReturn,
		Parameters:    params,
		Body:          body,
	}, nil
}

// parseBlock parses `{ STMT* }` as its own fresh scope - the generic form
// used by `if`, `while`, and parenthesised blocks used as expressions.
func (p *Parser) parseBlock() (*ast.Block, error) {
	scopeID := p.symbols.AddScope()
	p.symbols.EnterScope(scopeID)
	defer p.symbols.LeaveScope()

	return p.parseBlockIn(scopeID)
}

// parseBlockIn parses `{ STMT* }`, binding its statements into scopeID
// rather than allocating a fresh scope of its own. Used for a function's
// body, which shares the scope its parameters were bound into (the scope
// is created at `(`, per spec.md's parser design) rather than nesting a
// second scope inside it.
//
// Every statement is followed by a mandatory `;` - unlike at the top
// level, a block's statements are always semicolon-terminated.
func (p *Parser) parseBlockIn(scopeID symbols.ScopeID) (*ast.Block, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}

	var statements []ast.Node

	for {
		closed, err := p.peekIs(token.RBRACE)
		if err != nil {
			return nil, err
		}
		if closed {
			break
		}

		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)

		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}

	return &ast.Block{Statements: statements, ScopeID: scopeID}, nil
}

// parseDataType parses the type syntax: a bare identifier naming a
// primitive type, or a chain of `#` prefixes naming a pointer type.
func (p *Parser) parseDataType() (types.DataType, error) {
	tok, err := p.next()
	if err != nil {
		return types.DataType{}, err
	}

	switch tok.Kind {
	case token.HASH:
		inner, err := p.parseDataType()
		if err != nil {
			return types.DataType{}, err
		}
		return types.NewRef(inner), nil

	case token.IDENT:
		switch tok.Literal {
		case "Void":
			return types.TVoid, nil
		case "Bool":
			return types.TBool, nil
		case "S8":
			return types.S8, nil
		case "S16":
			return types.S16, nil
		case "S32":
			return types.S32, nil
		case "S64":
			return types.S64, nil
		case "U8":
			return types.U8, nil
		case "U16":
			return types.U16, nil
		case "U32":
			return types.U32, nil
		case "U64":
			return types.U64, nil
		case "String":
			return types.String, nil
		}
	}

	return types.DataType{}, cerrors.Wrap(cerrors.UnexpectedToken{Got: tok})
}

// parseIfStatement parses `if COND BLOCK [else BLOCK]`.
func (p *Parser) parseIfStatement() (*ast.IfStatement, error) {
	if _, err := p.expect(token.IF); err != nil {
		return nil, err
	}

	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}

	thenBlock, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	var elseBlock *ast.Block
	hasElse, err := p.peekIs(token.ELSE)
	if err != nil {
		return nil, err
	}
	if hasElse {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		elseBlock, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}

	return &ast.IfStatement{Condition: cond, Then: thenBlock, Else: elseBlock}, nil
}

// parseWhileLoop parses `while COND BLOCK`.
func (p *Parser) parseWhileLoop() (*ast.WhileLoop, error) {
	if _, err := p.expect(token.WHILE); err != nil {
		return nil, err
	}

	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &ast.WhileLoop{Condition: cond, Body: body}, nil
}

// parseCallArguments parses `( ARG,* )`, the callee having already been
// parsed.
func (p *Parser) parseCallArguments() ([]ast.Node, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}

	var args []ast.Node

	closed, err := p.peekIs(token.RPAREN)
	if err != nil {
		return nil, err
	}
	if closed {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		return args, nil
	}

	for {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		hasComma, err := p.peekIs(token.COMMA)
		if err != nil {
			return nil, err
		}
		if !hasComma {
			closing, err := p.next()
			if err != nil {
				return nil, err
			}
			if closing.Kind != token.RPAREN {
				return nil, cerrors.Wrap(cerrors.UnclosedParen{Got: closing})
			}
			break
		}
		if _, err := p.next(); err != nil {
			return nil, err
		}
	}

	return args, nil
}

// infixBindingPower returns the (left, right) binding powers for an
// infix operator token kind, or ok=false if kind is not an infix
// operator.
func infixBindingPower(kind token.Kind) (left, right int, ok bool) {
	switch kind {
	case token.EQ, token.NOT_EQ, token.GT, token.LT, token.GTE, token.LTE:
		return bpComparisonL, bpComparisonR, true
	case token.PLUS, token.MINUS:
		return bpAdditiveL, bpAdditiveR, true
	case token.ASTERISK, token.SLASH, token.PERCENT:
		return bpMultiplicativeL, bpMultiplicativeR, true
	}
	return 0, 0, false
}

// prefixBindingPower returns the binding power for a prefix operator
// token kind, or ok=false if kind cannot start a prefix expression.
func prefixBindingPower(kind token.Kind) (bp int, ok bool) {
	switch kind {
	case token.BANG, token.HASH, token.AT, token.MINUS:
		return bpPrefix, true
	}
	return 0, false
}

// parseExpr is the Pratt expression loop: it parses a primary (or
// prefix) expression, then repeatedly extends it with postfix calls and
// infix operators whose left binding power is at least minBP.
func (p *Parser) parseExpr(minBP int) (ast.Node, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}

	var lhs ast.Node

	switch {
	case tok.Kind == token.LPAREN:
		if _, err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		closing, err := p.next()
		if err != nil {
			return nil, err
		}
		if closing.Kind != token.RPAREN {
			return nil, cerrors.Wrap(cerrors.UnclosedParen{Got: closing})
		}
		lhs = inner

	case tok.Kind == token.LBRACE:
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		lhs = block

	case tok.Kind == token.IF:
		stmt, err := p.parseIfStatement()
		if err != nil {
			return nil, err
		}
		lhs = stmt

	case tok.Kind == token.WHILE:
		loop, err := p.parseWhileLoop()
		if err != nil {
			return nil, err
		}
		lhs = loop

	case tok.Kind.IsNode():
		if _, err := p.next(); err != nil {
			return nil, err
		}
		lhs = &ast.Leaf{Token: tok}

	default:
		bp, ok := prefixBindingPower(tok.Kind)
		if !ok {
			return nil, cerrors.Wrap(cerrors.UnexpectedToken{Got: tok})
		}
		if _, err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseExpr(bp)
		if err != nil {
			return nil, err
		}
		lhs = &ast.Prefix{Operator: tok, Operand: operand}
	}

	for {
		oper, err := p.peek()
		if err != nil {
			return nil, err
		}

		if oper.Kind == token.LPAREN {
			args, err := p.parseCallArguments()
			if err != nil {
				return nil, err
			}
			lhs = &ast.Call{Callee: lhs, Arguments: args}
			continue
		}

		left, right, ok := infixBindingPower(oper.Kind)
		if !ok || left < minBP {
			break
		}

		if _, err := p.next(); err != nil {
			return nil, err
		}

		rhs, err := p.parseExpr(right)
		if err != nil {
			return nil, err
		}

		lhs = &ast.Infix{Operator: oper, Left: lhs, Right: rhs}
	}

	return lhs, nil
}
