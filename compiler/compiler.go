// The compiler-package contains the core of our compiler.
//
// In brief we go through a four-step process:
//
//  1. Parse the source into an AST, via the lexer and parser, which also
//     populates the symbol table as it goes.
//
//  2. Typecheck the AST, resolving every expression's DataType and
//     rejecting anything that doesn't fit.
//
//  3. Lower the type-checked AST into a linear bytecode IR: registers,
//     labels, calls.
//
//  4. Walk the bytecode, generating a chunk of NASM assembly for each
//     instruction.
//
// Unlike the original toy, which held all of its intermediate state as
// Compiler fields, each phase here returns its own result and is handed
// forward to the next; the Compiler struct itself only remembers the
// source text and the debug flag.
package compiler

import (
	"github.com/pkg/errors"

	"github.com/go-imp/impc/ast"
	"github.com/go-imp/impc/bytecode"
	"github.com/go-imp/impc/cerrors"
	"github.com/go-imp/impc/codegen"
	"github.com/go-imp/impc/parser"
	"github.com/go-imp/impc/typecheck"
)

// Compiler holds our object-state.
type Compiler struct {

	// source holds the program text we're compiling.
	source string

	// debug holds a flag to decide if debugging "stuff" is generated
	// in the output assembly.
	debug bool
}

//
// Our public API consists of the three functions:
//  New
//  SetDebug
//  Compile
//
// The rest of the code is an implementation detail.
//

// New creates a new compiler, given the program source in the constructor.
func New(source string) *Compiler {
	return &Compiler{source: source}
}

// SetDebug changes the debug-flag for our output.
func (c *Compiler) SetDebug(val bool) {
	c.debug = val
}

// Compile converts the input program into a listing of freestanding
// x86-64 NASM assembly.
func (c *Compiler) Compile() (string, error) {
	prog, err := parser.Parse(c.source)
	if err != nil {
		return "", errors.Wrap(err, "parsing")
	}

	if err := typecheck.New(prog.Symbols).Check(prog.Statements); err != nil {
		return "", errors.Wrap(err, "typechecking")
	}

	// The generated entry point calls @main, so a program without a
	// function named main is rejected here.
	hasMain := false
	for _, stmt := range prog.Statements {
		if fn, ok := stmt.(*ast.FunctionDeclaration); ok && fn.Name == "main" {
			hasMain = true
		}
	}
	if !hasMain {
		return "", errors.Wrap(cerrors.UndeclaredIdent{Name: "main"}, "typechecking")
	}

	bc, err := bytecode.Build(prog.Statements)
	if err != nil {
		return "", errors.Wrap(err, "lowering")
	}

	out, err := codegen.Generate(bc, c.debug)
	if err != nil {
		return "", errors.Wrap(err, "generating assembly")
	}

	return out, nil
}
