// Package services implements the budget operations and the balance
// recalculation engine on top of the Store interface.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dailybudget/internal/core"
)

// BudgetService carries the user-facing operations: registration, spend
// ingestion, status reads, allowance changes and account deletion. It
// never touches the accumulated balance; that is the recalculation
// engine's job.
type BudgetService struct {
	store Store
	zones *core.ZoneResolver
}

func NewBudgetService(store Store, zones *core.ZoneResolver) *BudgetService {
	return &BudgetService{store: store, zones: zones}
}

// Register creates a new user. The reset day and initial checkpoint are
// both taken from the registration instant evaluated in the user's zone,
// so the registration day itself is the first day the sweep will close.
func (s *BudgetService) Register(ctx context.Context, userID int64, norm core.Money, timezone string, now time.Time) (*core.User, error) {
	if norm.Cents <= 0 {
		return nil, core.ErrInvalidAmount
	}

	existing, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if existing != nil {
		return nil, core.ErrUserExists
	}

	loc, ok := s.zones.Resolve(timezone)
	if !ok {
		slog.WarnContext(ctx, "Unknown timezone at registration, using fallback",
			"user_id", userID,
			"timezone", timezone,
			"fallback", s.zones.Fallback().String())
	}
	today := core.DateOf(now, loc)

	user := core.User{
		ID:             userID,
		DailyNorm:      norm,
		ResetDay:       today.Day,
		Timezone:       timezone,
		Balance:        core.Money{Cents: 0},
		LastRecalcDate: today,
		IsActive:       true,
		CreatedAt:      now.UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &user, nil
}

// Spend records a spending transaction at the given instant.
func (s *BudgetService) Spend(ctx context.Context, userID int64, amount core.Money, now time.Time) error {
	if amount.Cents <= 0 {
		return core.ErrInvalidAmount
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("spend: %w", err)
	}
	if user == nil {
		return core.ErrUserNotFound
	}

	_, err = s.store.InsertTransaction(ctx, core.Transaction{
		UserID:       userID,
		Amount:       amount,
		CreatedAtUTC: now.UTC(),
	})
	if err != nil {
		return fmt.Errorf("spend: %w", err)
	}
	return nil
}

// Status composes the read-side snapshot. It is pure: the stored balance
// and checkpoint are reported as-is, today's spend comes straight from
// the transaction log, and nothing is mutated.
func (s *BudgetService) Status(ctx context.Context, userID int64, now time.Time) (*core.Status, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}

	loc, _ := s.zones.Resolve(user.Timezone)
	start, end := core.DateOf(now, loc).UTCRange(loc)

	spentToday, err := s.store.SumAmounts(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	available := user.DailyNorm.Add(user.Balance)
	return &core.Status{
		BaseNorm:       user.DailyNorm,
		Balance:        user.Balance,
		AvailableToday: available,
		SpentToday:     spentToday,
		RemainingToday: available.Sub(spentToday),
	}, nil
}

// ChangeDailyNorm updates the allowance. The change is gated to the
// user's reset day; a reset day past the end of a short month is clamped
// to that month's last day so it stays reachable.
func (s *BudgetService) ChangeDailyNorm(ctx context.Context, userID int64, norm core.Money, now time.Time) error {
	if norm.Cents <= 0 {
		return core.ErrInvalidAmount
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("change daily norm: %w", err)
	}
	if user == nil {
		return core.ErrUserNotFound
	}

	loc, _ := s.zones.Resolve(user.Timezone)
	today := core.DateOf(now, loc)

	effectiveResetDay := user.ResetDay
	if last := lastDayOfMonth(today); effectiveResetDay > last {
		effectiveResetDay = last
	}
	if today.Day != effectiveResetDay {
		return core.ErrNormLocked
	}

	if err := s.store.UpdateDailyNorm(ctx, userID, norm); err != nil {
		return fmt.Errorf("change daily norm: %w", err)
	}
	return nil
}

// ResetDay reports the user's configured reset day, for presentation.
func (s *BudgetService) ResetDay(ctx context.Context, userID int64) (int, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reset day: %w", err)
	}
	if user == nil {
		return 0, core.ErrUserNotFound
	}
	return user.ResetDay, nil
}

// Delete removes the user and, through the cascade, every transaction.
func (s *BudgetService) Delete(ctx context.Context, userID int64) error {
	found, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if !found {
		return core.ErrUserNotFound
	}
	return nil
}

// Deactivate excludes the user from the sweep without dropping history.
func (s *BudgetService) Deactivate(ctx context.Context, userID int64) error {
	if err := s.store.Deactivate(ctx, userID); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	return nil
}

func lastDayOfMonth(d core.LocalDate) int {
	return time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
