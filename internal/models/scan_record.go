package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ScanRecord is one row in the local scan audit log. The document store stays
// the source of truth for ticket state; this table only exists so operators
// can answer "who scanned what, when" without replaying the ticket collection.
type ScanRecord struct {
	bun.BaseModel `bun:"table:scan_records"`

	ID        string    `bun:"id,pk"`
	EventID   string    `bun:"event_id"`
	Code      string    `bun:"code"`
	Outcome   string    `bun:"outcome"`
	ScanUse   string    `bun:"scan_use"`
	ScannedBy string    `bun:"scanned_by"`
	Zone      string    `bun:"zone"`
	ScannedAt time.Time `bun:"scanned_at"`
}
