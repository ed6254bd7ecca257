package services

import (
	"context"
	"sync"
	"time"

	"dailybudget/internal/core"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu    sync.Mutex
	users map[int64]*core.User
	txs   []core.Transaction
	seq   int64

	// sumErr, when set for a user, makes SumAmounts fail for that user.
	sumErr map[int64]error

	balanceWrites int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[int64]*core.User),
		sumErr: make(map[int64]error),
	}
}

func (f *fakeStore) GetUser(_ context.Context, userID int64) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) CreateUser(_ context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return false, nil
	}
	delete(f.users, userID)
	kept := f.txs[:0]
	for _, t := range f.txs {
		if t.UserID != userID {
			kept = append(kept, t)
		}
	}
	f.txs = kept
	return true, nil
}

func (f *fakeStore) ListActiveUsers(_ context.Context) ([]core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.User
	for _, u := range f.users {
		if u.IsActive {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertTransaction(_ context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t.ID = f.seq
	f.txs = append(f.txs, t)
	return t.ID, nil
}

func (f *fakeStore) SumAmounts(_ context.Context, userID int64, startUTC, endUTC time.Time) (core.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.sumErr[userID]; ok {
		return core.Money{}, err
	}
	var cents int64
	for _, t := range f.txs {
		if t.UserID != userID {
			continue
		}
		at := t.CreatedAtUTC
		if !at.Before(startUTC) && at.Before(endUTC) {
			cents += t.Amount.Cents
		}
	}
	return core.Money{Cents: cents}, nil
}

func (f *fakeStore) UpdateUserBalance(_ context.Context, userID int64, balance core.Money, checkpoint core.LocalDate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return core.ErrUserNotFound
	}
	u.Balance = balance
	u.LastRecalcDate = checkpoint
	f.balanceWrites++
	return nil
}

func (f *fakeStore) UpdateDailyNorm(_ context.Context, userID int64, norm core.Money) error {
	if norm.Cents <= 0 {
		return core.ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return core.ErrUserNotFound
	}
	u.DailyNorm = norm
	return nil
}

func (f *fakeStore) Deactivate(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return core.ErrUserNotFound
	}
	u.IsActive = false
	return nil
}

func (f *fakeStore) user(userID int64) core.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[userID]
}

// accrualRecorder collects published accrual events.
type accrualRecorder struct {
	mu     sync.Mutex
	events []accrualEvent
	err    error
}

type accrualEvent struct {
	userID  int64
	day     core.LocalDate
	spent   core.Money
	balance core.Money
}

func (r *accrualRecorder) PublishAccrualClosed(_ context.Context, userID int64, day core.LocalDate, spent, balance core.Money) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, accrualEvent{userID: userID, day: day, spent: spent, balance: balance})
	return nil
}
