// Package storage persists users and their spend transactions in SQLite.
//
// Instants are stored as RFC 3339 text in UTC ("...Z"): the fixed width
// makes lexicographic comparison in SQL equal to instant comparison, so
// half-open range queries work directly on the text column.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dailybudget/internal/core"

	_ "modernc.org/sqlite"
)

const (
	instantLayout   = time.RFC3339
	localDateLayout = "2006-01-02"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetUser returns the user or (nil, nil) when no row matches.
func (r *SQLiteRepository) GetUser(ctx context.Context, userID int64) (*core.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, daily_norm_cents, reset_day, timezone,
		       balance_cents, last_recalc_date, is_active, created_at
		FROM users WHERE user_id = ?`, userID)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return user, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, daily_norm_cents, reset_day, timezone,
		                   balance_cents, last_recalc_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.DailyNorm.Cents, u.ResetDay, u.Timezone,
		u.Balance.Cents, u.LastRecalcDate.String(), boolToInt(u.IsActive),
		u.CreatedAt.UTC().Format(instantLayout))
	if err != nil {
		return fmt.Errorf("create user %d: %w", u.ID, err)
	}

	slog.InfoContext(ctx, "User created",
		"user_id", u.ID,
		"daily_norm_cents", u.DailyNorm.Cents,
		"timezone", u.Timezone,
		"last_recalc_date", u.LastRecalcDate.String())
	return nil
}

// DeleteUser removes the user row; transactions cascade with it.
// Returns false when no such user existed.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("delete user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user %d: rows affected: %w", userID, err)
	}
	if n == 0 {
		return false, nil
	}

	slog.InfoContext(ctx, "User deleted", "user_id", userID)
	return true, nil
}

// ListActiveUsers returns every user included in the recalculation sweep.
// Rows with an unparseable checkpoint date are skipped and logged so one
// corrupt row cannot starve the rest of the sweep.
func (r *SQLiteRepository) ListActiveUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, daily_norm_cents, reset_day, timezone,
		       balance_cents, last_recalc_date, is_active, created_at
		FROM users WHERE is_active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable user row", "error", err)
			continue
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, amount_cents, created_at_utc)
		VALUES (?, ?, ?)`,
		t.UserID, t.Amount.Cents, t.CreatedAtUTC.UTC().Format(instantLayout))
	if err != nil {
		return 0, fmt.Errorf("insert transaction for user %d: %w", t.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction for user %d: last insert id: %w", t.UserID, err)
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"id", id,
		"user_id", t.UserID,
		"amount_cents", t.Amount.Cents)
	return id, nil
}

// SumAmounts totals transaction amounts for userID inside the half-open
// UTC interval [startUTC, endUTC). An empty or zero-width range sums to 0.
func (r *SQLiteRepository) SumAmounts(ctx context.Context, userID int64, startUTC, endUTC time.Time) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE user_id = ?
		  AND created_at_utc >= ?
		  AND created_at_utc < ?`,
		userID,
		startUTC.UTC().Format(instantLayout),
		endUTC.UTC().Format(instantLayout),
	).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum amounts for user %d: %w", userID, err)
	}
	return core.Money{Cents: cents}, nil
}

// UpdateUserBalance persists the recalculated balance together with the
// new checkpoint date. A single UPDATE keeps the pair atomic: no reader
// ever sees a new checkpoint with an old balance or vice versa.
func (r *SQLiteRepository) UpdateUserBalance(ctx context.Context, userID int64, balance core.Money, checkpoint core.LocalDate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET balance_cents = ?, last_recalc_date = ?
		WHERE user_id = ?`,
		balance.Cents, checkpoint.String(), userID)
	if err != nil {
		return fmt.Errorf("update balance for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUserNotFound
	}

	slog.InfoContext(ctx, "Balance updated",
		"user_id", userID,
		"balance_cents", balance.Cents,
		"checkpoint", checkpoint.String())
	return nil
}

func (r *SQLiteRepository) UpdateDailyNorm(ctx context.Context, userID int64, norm core.Money) error {
	if norm.Cents <= 0 {
		return core.ErrInvalidAmount
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET daily_norm_cents = ? WHERE user_id = ?`,
		norm.Cents, userID)
	if err != nil {
		return fmt.Errorf("update daily norm for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUserNotFound
	}

	slog.InfoContext(ctx, "Daily norm updated",
		"user_id", userID,
		"daily_norm_cents", norm.Cents)
	return nil
}

// Deactivate flips the soft-delete flag so the sweep skips the user while
// keeping all history in place.
func (r *SQLiteRepository) Deactivate(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_active = 0 WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deactivate user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*core.User, error) {
	var (
		u          core.User
		normCents  int64
		balCents   int64
		recalcDate string
		active     int
		createdAt  string
	)
	err := row.Scan(&u.ID, &normCents, &u.ResetDay, &u.Timezone,
		&balCents, &recalcDate, &active, &createdAt)
	if err != nil {
		return nil, err
	}

	u.DailyNorm = core.Money{Cents: normCents}
	u.Balance = core.Money{Cents: balCents}
	u.IsActive = active != 0

	u.LastRecalcDate, err = core.ParseLocalDate(recalcDate)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	u.CreatedAt, err = time.Parse(instantLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("user %d: parse created_at: %w", u.ID, err)
	}
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
