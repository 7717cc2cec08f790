package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindAll    Kind = "*"
)

// Payload is an opaque row image. The registry never inspects it; handlers
// decode it into their own types.
type Payload interface {
	Decode(v any) error
}

type JSONPayload json.RawMessage

func (p JSONPayload) Decode(v any) error {
	return json.Unmarshal(p, v)
}

func (p JSONPayload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}

	return p, nil
}

// Change is a single row-level event delivered by a Transport.
type Change struct {
	Kind       Kind
	Table      string
	Record     Payload
	OldRecord  Payload
	CommitTime time.Time
}

type Handler func(ctx context.Context, change Change) error

// Filter selects changes by kind and table. KindAll and an empty table match
// everything.
type Filter struct {
	Kind  Kind
	Table string
}

func (f Filter) Matches(change Change) bool {
	if f.Kind != KindAll && f.Kind != change.Kind {
		return false
	}

	return f.Table == "" || f.Table == change.Table
}

// Typed adapts a handler that works on a concrete record type. Deletes are
// decoded from OldRecord when the transport provides one.
func Typed[T any](fn func(ctx context.Context, kind Kind, record T) error) Handler {
	return func(ctx context.Context, change Change) error {
		var record T

		payload := change.Record
		if change.Kind == KindDelete && change.OldRecord != nil {
			payload = change.OldRecord
		}

		if payload != nil {
			if err := payload.Decode(&record); err != nil {
				return fmt.Errorf("decoding %v record: %w", change.Table, err)
			}
		}

		return fn(ctx, change.Kind, record)
	}
}
