package registry

import (
	"context"
	"errors"
	"time"

	"github.com/zsiec/lipsync/internal/avsync"
)

var (
	// ErrSessionNotFound is returned when no record exists for a session
	ErrSessionNotFound = errors.New("session not found")
)

// Status of a published session
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped  Status = "stopped"
)

// Record is the read-only view of a session published for other services.
// Nothing in the sync path reads it back.
type Record struct {
	ID            string       `json:"id"`
	Instance      string       `json:"instance"`
	Status        Status       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	Stats         avsync.Stats `json:"stats"`
}

// NewRecord builds a record from a stats snapshot.
func NewRecord(instance string, st avsync.Stats) *Record {
	status := StatusStopped
	if st.Running {
		status = StatusRunning
	}
	return &Record{
		ID:       st.StreamID,
		Instance: instance,
		Status:   status,
		Stats:    st,
	}
}

// Registry defines the interface for session registry operations
type Registry interface {
	// Publish creates or refreshes a record and extends its TTL
	Publish(ctx context.Context, rec *Record) error

	// Remove deletes a record
	Remove(ctx context.Context, id string) error

	// Get retrieves a record by session id
	Get(ctx context.Context, id string) (*Record, error)

	// List returns every live record
	List(ctx context.Context) ([]*Record, error)

	// Close releases resources held by the registry
	Close() error
}
