package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateName     = errors.New("duplicate name")
	ErrNotFound          = errors.New("not found")
	ErrSelfLoop          = errors.New("self-loop")
	ErrDuplicateEdge     = errors.New("duplicate edge")
	ErrCycle             = errors.New("cycle detected")
	ErrInvalidDefinition = errors.New("invalid definition")
)

// GraphError wraps a failed graph operation with the entity that caused it.
// The project is unchanged whenever one is returned.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func graphErrf(kind error, format string, args ...any) error {
	return &GraphError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	msg := "connection would close a cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return &GraphError{Kind: ErrCycle, Msg: msg}
}
