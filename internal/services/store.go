package services

import (
	"context"
	"time"

	"dailybudget/internal/core"
)

// Store is the persistence surface the services operate on. Implemented
// by storage.SQLiteRepository; reads report absence as (nil, nil) or a
// zero sum, never as an error.
type Store interface {
	GetUser(ctx context.Context, userID int64) (*core.User, error)
	CreateUser(ctx context.Context, u core.User) error
	DeleteUser(ctx context.Context, userID int64) (found bool, err error)
	ListActiveUsers(ctx context.Context) ([]core.User, error)
	InsertTransaction(ctx context.Context, t core.Transaction) (int64, error)
	SumAmounts(ctx context.Context, userID int64, startUTC, endUTC time.Time) (core.Money, error)
	// UpdateUserBalance must persist balance and checkpoint atomically.
	UpdateUserBalance(ctx context.Context, userID int64, balance core.Money, checkpoint core.LocalDate) error
	UpdateDailyNorm(ctx context.Context, userID int64, norm core.Money) error
	Deactivate(ctx context.Context, userID int64) error
}
