// Package journal keeps an ordered record of committed ledger events.
package journal

import (
	"context"

	"github.com/compose-network/harberger/x/ledger"
)

// Manager stores events published by the ledger and serves them back in
// sequence order.
type Manager interface {
	ledger.EventSink
	// ReadEntries returns every event with a sequence number above since.
	ReadEntries(ctx context.Context, since uint64) ([]ledger.Event, error)
	// LastSeq is the highest sequence number stored, zero when empty.
	LastSeq() uint64
	Close() error
}
