package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	dbconfig "pollroom/pkg/database"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

// Manager archives completed polls to SQLite
// ARCHITECTURAL DISCOVERY: The archive is write-behind. The session keeps its
// own in-memory history and never reads back from here, so archive failures
// are logged and never surface to classroom clients.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	retryDelay   time.Duration
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the archive, applies embedded migrations and validates the schema
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	log.Printf("History archive opened: %s", config.DatabasePath)
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after a pause
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in %v: %v", m.retryDelay, err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	}
}

// StoreHistoryEntry archives one completed poll
func (m *Manager) StoreHistoryEntry(ctx context.Context, entry *types.HistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("history entry requires an id")
	}

	// TECHNICAL DISCOVERY: JSON columns keep the option and result arrays
	// in the same shape the wire uses
	options, err := json.Marshal(entry.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	results, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO poll_history (id, question, options, results, total_participants, completed_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			entry.ID,
			entry.Question,
			string(options),
			string(results),
			entry.TotalParticipants,
			entry.CompletedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert history entry: %w", err)
		}
		return nil
	})
}

// ListHistory returns up to limit archived polls, most recent first.
// limit <= 0 returns everything.
func (m *Manager) ListHistory(ctx context.Context, limit int) ([]types.HistoryEntry, error) {
	query := `
		SELECT id, question, options, results, total_participants, completed_at
		FROM poll_history
		ORDER BY completed_at DESC, rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []types.HistoryEntry{}
	for rows.Next() {
		var (
			entry   types.HistoryEntry
			options string
			results string
		)
		if err := rows.Scan(&entry.ID, &entry.Question, &options, &results, &entry.TotalParticipants, &entry.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &entry.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options for %s: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(results), &entry.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results for %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// HealthCheck validates connectivity and that the archive table is readable
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM poll_history").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// Close shuts down the write loop and the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

var _ interfaces.HistoryArchive = (*Manager)(nil)
