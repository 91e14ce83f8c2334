package output

import (
	"context"

	"github.com/jobrunner/scenekit/internal/domain"
)

// Ledger defines the secondary port for recording downloads and export tasks.
type Ledger interface {
	// Record inserts or updates an entry.
	Record(ctx context.Context, entry domain.LedgerEntry) error

	// Recent returns the latest entries, newest first.
	Recent(ctx context.Context, limit int) ([]domain.LedgerEntry, error)

	// Close releases the underlying database.
	Close() error
}

// NoOpLedger discards every entry.
type NoOpLedger struct{}

// Record implements Ledger.
func (n *NoOpLedger) Record(_ context.Context, _ domain.LedgerEntry) error { return nil }

// Recent implements Ledger.
func (n *NoOpLedger) Recent(_ context.Context, _ int) ([]domain.LedgerEntry, error) { return nil, nil }

// Close implements Ledger.
func (n *NoOpLedger) Close() error { return nil }
