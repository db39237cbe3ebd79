package netstat

import (
	"errors"
	"fmt"
)

var errTooFewFields = errors.New("too few fields")

// RowError describes one socket table row that could not be parsed.
// The row is skipped; the rest of the table is still returned.
type RowError struct {
	Table string
	Line  int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s line %d: %v", e.Table, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// RowErrors extracts every RowError from an error tree built with errors.Join.
func RowErrors(err error) []*RowError {
	if err == nil {
		return nil
	}
	var out []*RowError
	var walk func(error)
	walk = func(e error) {
		if row, ok := e.(*RowError); ok {
			out = append(out, row)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
