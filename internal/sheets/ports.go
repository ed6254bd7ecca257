// Package sheets defines the outbound ledger ports and their entry type.
package sheets

import (
	"context"
	"time"

	"dailybudget/internal/core"
)

// LedgerEntry is one closed local day as it appears in the external
// accrual ledger.
type LedgerEntry struct {
	Day        core.LocalDate
	UserID     int64
	Spent      core.Money
	Balance    core.Money // running balance after the day closed
	RecordedAt time.Time
}

// LedgerAppender is the port for outbound ledger adapters.
type LedgerAppender interface {
	AppendAccrual(ctx context.Context, e LedgerEntry) (rowRef string, err error)
}
