package core

import (
	"errors"
	"time"
)

type (
	// User is the per-account state the recalculation engine operates on.
	// Balance and LastRecalcDate are only ever advanced together.
	User struct {
		ID             int64
		DailyNorm      Money
		ResetDay       int // day of month on which DailyNorm may be changed
		Timezone       string
		Balance        Money
		LastRecalcDate LocalDate
		IsActive       bool
		CreatedAt      time.Time
	}

	// Transaction is an immutable spend event. Amount is positive cents;
	// CreatedAtUTC is the absolute instant of the spend.
	Transaction struct {
		ID           int64
		UserID       int64
		Amount       Money
		CreatedAtUTC time.Time
	}

	// Status is the read-side snapshot composed for presentation.
	Status struct {
		BaseNorm       Money
		Balance        Money
		AvailableToday Money
		SpentToday     Money
		RemainingToday Money
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already registered")
	ErrNormLocked    = errors.New("daily norm can only be changed on the reset day")
)

func (u User) Validate() error {
	if u.DailyNorm.Cents <= 0 {
		return ErrInvalidAmount
	}
	if u.ResetDay < 1 || u.ResetDay > 31 {
		return errors.New("reset day out of range")
	}
	if u.Timezone == "" {
		return errors.New("empty timezone")
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if t.CreatedAtUTC.IsZero() {
		return errors.New("transaction instant cannot be zero")
	}
	return nil
}
