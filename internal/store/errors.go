package store

import "fmt"

// Programming errors (§7): fail-fast, never retried.

type ErrWrongType struct {
	Column   string
	Expected string
	Actual   string
}

func (e *ErrWrongType) Error() string {
	return fmt.Sprintf("column %q: wrong type, expected %s got %s", e.Column, e.Expected, e.Actual)
}

type ErrOutOfBoundsIndex struct {
	Requested int
	Valid     int
}

func (e *ErrOutOfBoundsIndex) Error() string {
	return fmt.Sprintf("index %d out of bounds, valid count is %d", e.Requested, e.Valid)
}

type ErrWrongTransactionState struct {
	Operation string
	Reason    string
}

func (e *ErrWrongTransactionState) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Reason)
}

type ErrInvalidated struct {
	What string
}

func (e *ErrInvalidated) Error() string {
	return fmt.Sprintf("%s is invalidated", e.What)
}

type ErrInvalidEmbeddedOperation struct {
	Reason string
}

func (e *ErrInvalidEmbeddedOperation) Error() string {
	return fmt.Sprintf("invalid embedded operation: %s", e.Reason)
}

type ErrMissingProperty struct {
	Table string
	Name  string
}

func (e *ErrMissingProperty) Error() string {
	return fmt.Sprintf("table %q has no property %q", e.Table, e.Name)
}
