// Package apperr defines the failure taxonomy shared by ingestion, training
// and prediction, and the skip-versus-abort decision derived from it.
package apperr

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrUpstreamUnavailable marks transient provider or network failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamSchemaDrift marks a record with a missing or malformed field.
	ErrUpstreamSchemaDrift = errors.New("upstream schema drift")
	// ErrReferencedEntityMissing marks a dependent row whose parent is not stored yet.
	ErrReferencedEntityMissing = errors.New("referenced entity missing")
	// ErrInsufficientTrainingData marks a team/season without enough games.
	ErrInsufficientTrainingData = errors.New("insufficient training data")
	// ErrNoActiveModel is returned when predictions are requested before any model is trained.
	ErrNoActiveModel = errors.New("no active model")
	// ErrCacheUnavailable is only ever logged and counted.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrStoreUnavailable marks relational store connectivity failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Class is what an orchestrator does with a failed item.
type Class int

const (
	// Skip logs the item and moves on to its siblings.
	Skip Class = iota
	// Abort stops the whole run.
	Abort
	// Fatal is surfaced to the caller of a single operation.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	default:
		return "fatal"
	}
}

// Mark attaches a taxonomy sentinel to err while keeping its message.
func Mark(err error, sentinel error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, sentinel)
}

// SchemaDrift builds a drift error naming the record and field.
func SchemaDrift(record, field string) error {
	return errors.Mark(errors.Newf("%s: missing or malformed field %q", record, field), ErrUpstreamSchemaDrift)
}

// MissingRef builds a referenced-entity error.
func MissingRef(kind string, key interface{}) error {
	return errors.Mark(errors.Newf("%s %v not ingested yet", kind, key), ErrReferencedEntityMissing)
}

// Classify decides skip, abort or fatal for an item-level error.
// Taxonomy marks take precedence over context sentinels: a client timeout
// marked ErrUpstreamUnavailable skips the item, and only unmarked context
// errors abort.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Skip
	case errors.Is(err, ErrStoreUnavailable):
		return Abort
	case errors.Is(err, ErrUpstreamSchemaDrift),
		errors.Is(err, ErrReferencedEntityMissing),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrInsufficientTrainingData),
		errors.Is(err, ErrCacheUnavailable):
		return Skip
	case errors.Is(err, ErrNoActiveModel):
		return Fatal
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return Abort
	default:
		// Unclassified errors on a single item (a bad row, a constraint
		// violation) are isolated to that item.
		return Skip
	}
}
