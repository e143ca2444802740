// Package storage persists conversation session records.
//
// A record is an opaque JSON document keyed by session id; the memory
// package owns its shape. Backends only need get/put-by-id and a listing
// ordered by last update.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Storage defines the interface for session persistence backends.
type Storage interface {
	// Get returns the record for sessionID or a *NotFoundError.
	Get(ctx context.Context, sessionID string) (*Record, error)

	// Put inserts or replaces the record for rec.SessionID.
	Put(ctx context.Context, rec *Record) error

	// List returns session ids, most recently updated first, and the total count.
	List(ctx context.Context, filter *ListFilter) ([]string, int, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Record is one persisted session.
type Record struct {
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = append(json.RawMessage(nil), r.Data...)
	return &c
}

// ListFilter defines pagination for List.
type ListFilter struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalize applies the default page size and clamps negative values.
func (f *ListFilter) Normalize() ListFilter {
	out := ListFilter{Limit: 50}
	if f == nil {
		return out
	}
	if f.Limit > 0 {
		out.Limit = f.Limit
	}
	if f.Offset > 0 {
		out.Offset = f.Offset
	}
	return out
}

// Page sorts records by UpdatedAt descending (ties by id) and applies the filter.
func Page(records []*Record, filter *ListFilter) ([]string, int) {
	f := filter.Normalize()
	sort.Slice(records, func(i, j int) bool {
		if records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].SessionID < records[j].SessionID
		}
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})

	total := len(records)
	if f.Offset >= total {
		return []string{}, total
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	ids := make([]string, 0, end-f.Offset)
	for _, r := range records[f.Offset:end] {
		ids = append(ids, r.SessionID)
	}
	return ids, total
}

// Validate checks a record before it is written.
func Validate(rec *Record) error {
	if rec == nil || rec.SessionID == "" {
		return &InvalidRecordError{Reason: "session id is required"}
	}
	if !json.Valid(rec.Data) {
		return &InvalidRecordError{SessionID: rec.SessionID, Reason: "data is not valid JSON"}
	}
	return nil
}

// NotFoundError indicates that the requested session was not found.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// InvalidRecordError indicates a record that cannot be stored.
type InvalidRecordError struct {
	SessionID string
	Reason    string
}

func (e *InvalidRecordError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("invalid record: %s", e.Reason)
	}
	return fmt.Sprintf("invalid record %s: %s", e.SessionID, e.Reason)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}
