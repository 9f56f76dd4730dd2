// Package ragerr defines the closed set of error kinds raised by the
// indexing and retrieval pipeline.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// Validation errors are raised before any work is attempted.
	Validation Kind = "validation"
	// Provider errors come from an external collaborator (embedding API,
	// vector database, git).
	Provider Kind = "provider"
	// NotFound signals a missing collection, repository or record.
	NotFound Kind = "not_found"
)

// Stage names the pipeline step an error belongs to.
type Stage string

const (
	StageClone    Stage = "clone"
	StageWalk     Stage = "walk"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageStore    Stage = "store"
	StageSearch   Stage = "search"
	StageContext  Stage = "context"
	StageGenerate Stage = "generate"
)

// Error is the concrete error type for every kind.
type Error struct {
	Kind  Kind
	Stage Stage
	Op    string
	// Batch is the 1-based batch number for batched operations, 0 otherwise.
	Batch int
	Err   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Op)
	if e.Batch > 0 {
		msg += fmt.Sprintf(" (batch %d)", e.Batch)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a Validation error with a formatted message.
func Validationf(stage Stage, format string, args ...any) error {
	return &Error{Kind: Validation, Stage: stage, Op: fmt.Sprintf(format, args...)}
}

// NewProvider wraps err as a Provider error.
func NewProvider(stage Stage, op string, err error) error {
	return &Error{Kind: Provider, Stage: stage, Op: op, Err: err}
}

// NewBatchProvider wraps err as a Provider error for the given 1-based batch.
func NewBatchProvider(stage Stage, op string, batch int, err error) error {
	return &Error{Kind: Provider, Stage: stage, Op: op, Batch: batch, Err: err}
}

// NewNotFound builds a NotFound error.
func NewNotFound(stage Stage, op string) error {
	return &Error{Kind: NotFound, Stage: stage, Op: op}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf returns the stage of the first *Error in err's chain, or "" if none.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == Validation }
func IsProvider(err error) bool   { return KindOf(err) == Provider }
func IsNotFound(err error) bool   { return KindOf(err) == NotFound }
