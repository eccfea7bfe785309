package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// StateRecord is one raw binary sensor state as persisted in the history log.
type StateRecord struct {
	ID         int64
	EntityID   string
	State      string
	RecordedAt time.Time
}

// ReadingRecord is one computed gauge reading persisted for reconciliation
// and export. Values are stored as decimals to survive the numeric round
// trip exactly.
type ReadingRecord struct {
	EntityID   string
	Value      decimal.Decimal
	RecordedAt time.Time
}
