package interfaces

import (
	"context"

	"pollroom/pkg/types"
)

// HistoryArchive is the write-behind store for completed polls
// ARCHITECTURAL DISCOVERY: The archive is never read back into the session;
// the in-memory history log lives for the process lifetime only
type HistoryArchive interface {
	// StoreHistoryEntry persists one completed poll
	StoreHistoryEntry(ctx context.Context, entry *types.HistoryEntry) error

	// ListHistory returns up to limit archived polls, most recent first
	ListHistory(ctx context.Context, limit int) ([]types.HistoryEntry, error)

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and closes the database
	Close() error
}
