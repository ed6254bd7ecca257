package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"dailybudget/internal/core"
)

// AccrualPublisher receives one event per closed local day. A nil
// publisher disables the ledger pipeline.
type AccrualPublisher interface {
	PublishAccrualClosed(ctx context.Context, userID int64, day core.LocalDate, spent, balance core.Money) error
}

// RecalcProcessor folds elapsed local days into each active user's
// accumulated balance. It is invoked on an external cadence and is an
// idempotent no-op for users whose checkpoint is already at today.
type RecalcProcessor struct {
	store       Store
	zones       *core.ZoneResolver
	publisher   AccrualPublisher
	concurrency int
}

func NewRecalcProcessor(store Store, zones *core.ZoneResolver, publisher AccrualPublisher, concurrency int) *RecalcProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RecalcProcessor{
		store:       store,
		zones:       zones,
		publisher:   publisher,
		concurrency: concurrency,
	}
}

// RecalculateAll runs one sweep over all active users as of instant now.
// Users are processed independently: one failure is logged, leaves that
// user's checkpoint untouched for the next sweep, and never aborts the
// rest. Returns the number of users whose balance was advanced.
func (p *RecalcProcessor) RecalculateAll(ctx context.Context, now time.Time) (int, error) {
	users, err := p.store.ListActiveUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active users: %w", err)
	}

	slog.InfoContext(ctx, "Starting balance recalculation sweep",
		"active_users", len(users))

	var advanced atomic.Int64

	g := &errgroup.Group{}
	g.SetLimit(p.concurrency)
	for _, user := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			days, err := p.recalculateUser(ctx, user, now)
			if err != nil {
				slog.ErrorContext(ctx, "User recalculation failed, will retry next sweep",
					"user_id", user.ID,
					"error", err)
				return nil
			}
			if days > 0 {
				advanced.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	slog.InfoContext(ctx, "Balance recalculation sweep complete",
		"active_users", len(users),
		"users_advanced", advanced.Load())
	return int(advanced.Load()), ctx.Err()
}

type closedDay struct {
	day     core.LocalDate
	spent   core.Money
	balance core.Money
}

// recalculateUser walks forward one local calendar day at a time from the
// user's checkpoint up to (but excluding) today, folding each day's
// allowance net of spend into the running balance. The allowance accrues
// once per day, so a backlog of missed sweeps is replayed day by day: a
// single-day overspend depletes only that day's allowance. The number of
// folded days is returned.
func (p *RecalcProcessor) recalculateUser(ctx context.Context, user core.User, now time.Time) (int, error) {
	loc, ok := p.zones.Resolve(user.Timezone)
	if !ok {
		slog.WarnContext(ctx, "Unknown timezone, recalculating in fallback zone",
			"user_id", user.ID,
			"timezone", user.Timezone,
			"fallback", loc.String())
	}

	todayLocal := core.DateOf(now, loc)

	// Already closed up to today: guards against re-entry within the
	// same local day and against clocks that moved backwards.
	if !user.LastRecalcDate.Before(todayLocal) {
		return 0, nil
	}

	balance := user.Balance
	var closed []closedDay

	for day := user.LastRecalcDate; day.Before(todayLocal); day = day.Next() {
		startUTC, endUTC := day.UTCRange(loc)

		spent, err := p.store.SumAmounts(ctx, user.ID, startUTC, endUTC)
		if err != nil {
			return 0, fmt.Errorf("sum spend for %s: %w", day, err)
		}

		balance = user.DailyNorm.Add(balance).Sub(spent)
		closed = append(closed, closedDay{day: day, spent: spent, balance: balance})

		slog.DebugContext(ctx, "Closed local day",
			"user_id", user.ID,
			"day", day.String(),
			"spent_cents", spent.Cents,
			"balance_cents", balance.Cents)
	}

	// One atomic write for the whole backlog: the new balance is only
	// ever visible together with the checkpoint that covers it.
	if err := p.store.UpdateUserBalance(ctx, user.ID, balance, todayLocal); err != nil {
		return 0, fmt.Errorf("persist balance: %w", err)
	}

	slog.InfoContext(ctx, "User balance recalculated",
		"user_id", user.ID,
		"days_closed", len(closed),
		"balance_cents", balance.Cents,
		"checkpoint", todayLocal.String())

	p.publishClosedDays(ctx, user.ID, closed)
	return len(closed), nil
}

// publishClosedDays mirrors closed days to the accrual ledger. Best
// effort: the balance is already persisted, so publish failures are
// logged and dropped rather than failing the sweep.
func (p *RecalcProcessor) publishClosedDays(ctx context.Context, userID int64, closed []closedDay) {
	if p.publisher == nil {
		return
	}
	for _, c := range closed {
		if err := p.publisher.PublishAccrualClosed(ctx, userID, c.day, c.spent, c.balance); err != nil {
			slog.ErrorContext(ctx, "Failed to publish accrual event",
				"user_id", userID,
				"day", c.day.String(),
				"error", err)
		}
	}
}
