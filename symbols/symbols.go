// Package symbols implements the compiler's symbol table: a forest of
// lexically nested scopes, appended to during parsing and read only
// thereafter.
//
// AST nodes reference scopes by a stable integer ID rather than a
// pointer, so growing the table (adding more scopes, or more variables to
// an existing scope) never invalidates a reference an earlier phase took.
package symbols

import (
	"github.com/go-imp/impc/stack"
	"github.com/go-imp/impc/types"
)

// ScopeID identifies a scope. Scope 0 is the root (file-level) scope.
type ScopeID int

// Variable describes a single binding within a scope.
type Variable struct {
	DataType types.DataType
}

// scope is an ordered mapping name -> Variable, plus a link to its
// parent. The insertion order is recorded in names; lookups are by name.
type scope struct {
	parent    ScopeID
	hasParent bool
	names     []string
	vars      map[string]Variable
}

// Table is a forest of scopes with a movable "current scope" cursor.
type Table struct {
	scopes []scope
	cursor ScopeID

	// history lets LeaveScope restore the cursor to whatever scope was
	// current before the most recent EnterScope - this is the teacher's
	// stack package, repurposed to hold scope IDs instead of strings.
	history *stack.Stack[ScopeID]
}

// New creates a symbol table containing a single root scope (ID 0) and
// makes it the current scope.
func New() *Table {
	t := &Table{
		scopes:  []scope{{vars: make(map[string]Variable)}},
		cursor:  0,
		history: stack.New[ScopeID](),
	}
	return t
}

// CurrentScope returns the ID of the scope the cursor currently points
// at.
func (t *Table) CurrentScope() ScopeID {
	return t.cursor
}

// AddScope allocates a fresh scope parented to the current scope and
// returns its stable ID, without moving the cursor.
func (t *Table) AddScope() ScopeID {
	id := ScopeID(len(t.scopes))
	t.scopes = append(t.scopes, scope{
		parent:    t.cursor,
		hasParent: true,
		vars:      make(map[string]Variable),
	})
	return id
}

// EnterScope moves the cursor to id, remembering the previous cursor so
// LeaveScope can restore it. Callers must balance every EnterScope with a
// LeaveScope, including on error paths.
func (t *Table) EnterScope(id ScopeID) {
	t.history.Push(t.cursor)
	t.cursor = id
}

// LeaveScope moves the cursor back to whatever scope was current before
// the matching EnterScope.
func (t *Table) LeaveScope() {
	prev, err := t.history.Pop()
	if err != nil {
		// Unbalanced enter/leave calls are a programming error in the
		// parser, not a user-facing one.
		panic("symbols: LeaveScope called without a matching EnterScope")
	}
	t.cursor = prev
}

// AddVariable binds name to v in the current scope.
func (t *Table) AddVariable(name string, v Variable) {
	s := &t.scopes[t.cursor]
	if _, exists := s.vars[name]; !exists {
		s.names = append(s.names, name)
	}
	s.vars[name] = v
}

// Lookup resolves name starting from scope id and walking up the parent
// chain, returning the first binding found.
func (t *Table) Lookup(id ScopeID, name string) (Variable, bool) {
	for {
		s := &t.scopes[id]
		if v, ok := s.vars[name]; ok {
			return v, true
		}
		if !s.hasParent {
			return Variable{}, false
		}
		id = s.parent
	}
}

// LookupCurrent resolves name starting from the current scope.
func (t *Table) LookupCurrent(name string) (Variable, bool) {
	return t.Lookup(t.cursor, name)
}
