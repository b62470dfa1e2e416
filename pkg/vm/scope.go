package vm

import (
	"errors"
	"fmt"
)

// Scope errors.
var (
	ErrCannotExitMainScope = errors.New("cannot exit main scope")
	ErrVariableNotInScope  = errors.New("variable not in scope")
	ErrScopeTypeMismatch   = errors.New("scope variable has unexpected type")
)

// ExecutionScopes is the nesting key-value store hints use to keep state
// between invocations. The innermost scope shadows outer ones.
type ExecutionScopes struct {
	scopes []map[string]any
}

// NewExecutionScopes returns a store holding only the main scope.
func NewExecutionScopes() *ExecutionScopes {
	return &ExecutionScopes{scopes: []map[string]any{{}}}
}

// EnterScope pushes a new scope seeded with locals.
func (s *ExecutionScopes) EnterScope(locals map[string]any) {
	scope := make(map[string]any, len(locals))
	for k, v := range locals {
		scope[k] = v
	}
	s.scopes = append(s.scopes, scope)
}

// ExitScope pops the innermost scope. The main scope cannot be exited.
func (s *ExecutionScopes) ExitScope() error {
	if len(s.scopes) <= 1 {
		return ErrCannotExitMainScope
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
	return nil
}

// Depth returns the number of scopes, including the main one.
func (s *ExecutionScopes) Depth() int {
	return len(s.scopes)
}

// Insert sets name in the innermost scope.
func (s *ExecutionScopes) Insert(name string, value any) {
	s.scopes[len(s.scopes)-1][name] = value
}

// Get looks name up from the innermost scope outwards.
func (s *ExecutionScopes) Get(name string) (any, error) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if v, ok := s.scopes[i][name]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrVariableNotInScope, name)
}

// Delete removes name from the innermost scope.
func (s *ExecutionScopes) Delete(name string) {
	delete(s.scopes[len(s.scopes)-1], name)
}

// ScopeValue fetches name and asserts its type.
func ScopeValue[T any](s *ExecutionScopes, name string) (T, error) {
	var zero T
	v, err := s.Get(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrScopeTypeMismatch, name, v)
	}
	return t, nil
}
