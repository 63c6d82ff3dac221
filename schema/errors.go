package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrSchemaConflict       = errors.New("schema conflict")
	ErrImplicitDeletePolicy = errors.New("foreign key delete policy must be stated explicitly")
	ErrUnmappedEnumValue    = errors.New("enum narrowing would orphan existing values")
	ErrInvalidEnum          = errors.New("invalid enum definition")
	ErrUnsupported          = errors.New("operation is not supported by the store")
)

// ConflictError reports that an operation found the store in a state from
// which its target state cannot be reached.
type ConflictError struct {
	Op     string
	Table  string
	Object string
	Reason string
}

func (e *ConflictError) Error() string {
	target := e.Table
	if e.Object != "" {
		target += "." + e.Object
	}
	return fmt.Sprintf("%s: %s %s: %s", ErrSchemaConflict, e.Op, target, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return ErrSchemaConflict
}

func conflict(op, table, object, reason string, args ...interface{}) error {
	return &ConflictError{
		Op:     op,
		Table:  table,
		Object: object,
		Reason: fmt.Sprintf(reason, args...),
	}
}

// UnmappedEnumError lists the values (and the keys of rows holding them)
// that a narrowing would remove without a remap target.
type UnmappedEnumError struct {
	TypeName string
	Values   []string
	Rows     map[string][]string // "table.column" -> row keys
}

func (e *UnmappedEnumError) Error() string {
	refs := make([]string, 0, len(e.Rows))
	for ref, keys := range e.Rows {
		refs = append(refs, fmt.Sprintf("%s[%s]", ref, strings.Join(keys, ",")))
	}
	sort.Strings(refs)

	return fmt.Sprintf("%s: %s: values %s are used by %s",
		ErrUnmappedEnumValue, e.TypeName, strings.Join(e.Values, ","), strings.Join(refs, " "))
}

func (e *UnmappedEnumError) Unwrap() error {
	return ErrUnmappedEnumValue
}
