package domain

import (
	"context"
	"time"
)

// Transaction exposes the lifecycle operations a persistence implementation
// must support within an atomic scope. Nothing written through a Transaction
// is visible to other readers until RunInTransaction commits.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	FindApplication(id string) (Application, bool, error)
	FindApplicationByCandidate(jobID, talentID string) (Application, bool, error)
	CreateApplication(Application) (Application, error)
	// CompareAndSwapStatus updates status, last activity and version only when
	// the stored version equals expectedVersion and the row is not soft
	// deleted. A mismatch returns ErrVersionConflict and changes nothing.
	CompareAndSwapStatus(id string, expectedVersion int64, mutation StatusMutation) (Application, error)
	AppendHistory(StatusHistoryEntry) (StatusHistoryEntry, error)
	SoftDeleteApplication(id, deletedBy string) (Application, error)
	// AnonymizeApplication nulls content fields and history notes and stamps
	// anonymized_at. Status, version and history structure are preserved.
	AnonymizeApplication(id string) (Application, error)
}

// TransactionView provides read-only access to transactional state for rules.
type TransactionView interface {
	FindApplication(id string) (Application, bool, error)
	ListHistory(applicationID string) ([]StatusHistoryEntry, error)
}

// PersistentStore is the injected storage adapter consumed by the core
// service. Implementations own their connections and release them in Close.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetApplication(ctx context.Context, id string) (Application, bool, error)
	// ListHistory returns entries ascending by changed_at, then sequence.
	ListHistory(ctx context.Context, applicationID string) ([]StatusHistoryEntry, error)
	// StreamHistory visits entries in ListHistory order. fn may read the
	// store; backends that cannot hold a cursor open alongside another query
	// buffer the entries first.
	StreamHistory(ctx context.Context, applicationID string, fn func(StatusHistoryEntry) error) error
	// ListRetentionCandidates returns IDs of terminal, not yet anonymized
	// applications whose last activity is at or before cutoff.
	ListRetentionCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	Close() error
}
