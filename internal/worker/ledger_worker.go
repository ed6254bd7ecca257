// Package worker turns consumed accrual events into ledger rows.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dailybudget/internal/amqp"
	"dailybudget/internal/core"
	"dailybudget/internal/sheets"
)

// LedgerWorker handles accrual events from the recalculation sweep and
// mirrors them into the configured ledger sink.
type LedgerWorker struct {
	ledger sheets.LedgerAppender
}

func NewLedgerWorker(ledger sheets.LedgerAppender) *LedgerWorker {
	return &LedgerWorker{ledger: ledger}
}

// HandleAccrual processes a single accrual event. An error makes the
// consumer requeue the message, so appends must stay safe to retry.
func (w *LedgerWorker) HandleAccrual(ctx context.Context, msg *amqp.AccrualClosedMessage) error {
	if w.ledger == nil {
		return fmt.Errorf("worker not properly initialized")
	}

	day, err := core.ParseLocalDate(msg.Day)
	if err != nil {
		return fmt.Errorf("accrual event for user %d: %w", msg.UserID, err)
	}

	recordedAt := msg.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	ref, err := w.ledger.AppendAccrual(ctx, sheets.LedgerEntry{
		Day:        day,
		UserID:     msg.UserID,
		Spent:      core.Money{Cents: msg.SpentCents},
		Balance:    core.Money{Cents: msg.BalanceCents},
		RecordedAt: recordedAt,
	})
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}

	slog.InfoContext(ctx, "Accrual mirrored to ledger",
		"user_id", msg.UserID,
		"day", msg.Day,
		"row", ref)
	return nil
}
