// Package backfill reshapes existing rows while a revision is applied. Every
// transform reads all of its input and computes its output before it writes
// anything, and reports the key of the first offending row.
package backfill

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMergeKeyMismatch = errors.New("merge source rows do not match target rows one to one")
	ErrUnmappedFields   = errors.New("document has fields outside the mapping and no overflow column")
	ErrPartialDrop      = errors.New("source column cannot be dropped when only some rows are normalized")
)

// RowError is a transform failure on a single source row.
type RowError struct {
	Table string
	Key   string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %s of %s: %v", e.Key, e.Table, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// MergeKeyMismatchError lists source keys without a target row and keys that
// resolve to several target rows.
type MergeKeyMismatchError struct {
	Source    string
	Target    string
	Unmatched []string
	Ambiguous []string
}

func (e *MergeKeyMismatchError) Error() string {
	var parts []string
	if len(e.Unmatched) > 0 {
		parts = append(parts, "unmatched keys ["+strings.Join(e.Unmatched, ",")+"]")
	}
	if len(e.Ambiguous) > 0 {
		parts = append(parts, "ambiguous keys ["+strings.Join(e.Ambiguous, ",")+"]")
	}
	return fmt.Sprintf("%s: %s into %s: %s", ErrMergeKeyMismatch, e.Source, e.Target, strings.Join(parts, ", "))
}

func (e *MergeKeyMismatchError) Unwrap() error {
	return ErrMergeKeyMismatch
}
