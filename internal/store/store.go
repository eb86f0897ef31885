// Package store provides the shared record store backing the session
// ledger: hash records, append-only lists, and member sets, with a
// multi-key optimistic read-modify-write primitive.
package store

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable marks transport-level failures talking to the backend.
	ErrUnavailable = errors.New("record store unavailable")
	// ErrConflict is returned when an Apply lost its optimistic race too
	// many times in a row.
	ErrConflict = errors.New("record store write conflict")
)

// Record is one hash record, field name to stringified value.
type Record map[string]string

// Mutation is the write set produced by an Apply callback. Everything in
// one Mutation commits atomically or not at all.
type Mutation struct {
	Set    map[string]Record   // hash key -> fields to set
	Append map[string][]string // list key -> values to append, in order
	AddTo  map[string][]string // set key -> members to add
	Delete []string            // keys to remove entirely
}

// NewMutation returns an empty mutation ready to be filled in.
func NewMutation() *Mutation {
	return &Mutation{
		Set:    make(map[string]Record),
		Append: make(map[string][]string),
		AddTo:  make(map[string][]string),
	}
}

type Store interface {
	// Get reads a whole hash record. A missing key yields an empty Record,
	// not an error.
	Get(ctx context.Context, key string) (Record, error)

	// Apply runs fn against a consistent view of the watched keys and
	// commits the returned mutation only if none of them changed in the
	// meantime. A nil mutation with nil error commits nothing. Errors from
	// fn pass through unchanged; exhausted retries surface ErrConflict.
	Apply(ctx context.Context, keys []string, fn func(view map[string]Record) (*Mutation, error)) error

	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListLen(ctx context.Context, key string) (int64, error)
	SetMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
