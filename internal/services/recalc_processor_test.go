package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"dailybudget/internal/core"
)

func newTestZones(t *testing.T) *core.ZoneResolver {
	t.Helper()
	zones, err := core.NewZoneResolver("Europe/Moscow")
	if err != nil {
		t.Fatalf("new zone resolver: %v", err)
	}
	return zones
}

func seedUser(t *testing.T, store *fakeStore, id int64, normCents int64, timezone string, lastRecalc core.LocalDate) {
	t.Helper()
	err := store.CreateUser(context.Background(), core.User{
		ID:             id,
		DailyNorm:      core.Money{Cents: normCents},
		ResetDay:       lastRecalc.Day,
		Timezone:       timezone,
		LastRecalcDate: lastRecalc,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user %d: %v", id, err)
	}
}

func spendAt(t *testing.T, store *fakeStore, userID int64, cents int64, at time.Time) {
	t.Helper()
	_, err := store.InsertTransaction(context.Background(), core.Transaction{
		UserID:       userID,
		Amount:       core.Money{Cents: cents},
		CreatedAtUTC: at.UTC(),
	})
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
}

// Worked example: norm 100, balance 0, checkpoint three
// days back, spends of 40 / 150 / 0 on those days. One sweep folds each
// day individually: (100-40)+(100-150)+(100-0) = 110.
func TestRecalculateAllFoldsEachMissedDay(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	msk, _ := zones.Resolve("Europe/Moscow")

	seedUser(t, store, 1, 10000, "Europe/Moscow", core.LocalDate{Year: 2026, Month: time.August, Day: 27})
	spendAt(t, store, 1, 4000, time.Date(2026, time.August, 27, 12, 0, 0, 0, msk))
	spendAt(t, store, 1, 15000, time.Date(2026, time.August, 28, 9, 30, 0, 0, msk))
	// No spend on Aug 29.

	now := time.Date(2026, time.August, 30, 8, 0, 0, 0, msk)
	p := NewRecalcProcessor(store, zones, nil, 1)

	advanced, err := p.RecalculateAll(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if advanced != 1 {
		t.Fatalf("advanced = %d, want 1", advanced)
	}

	u := store.user(1)
	if u.Balance.Cents != 11000 {
		t.Fatalf("balance = %d, want 11000", u.Balance.Cents)
	}
	if got := u.LastRecalcDate.String(); got != "2026-08-30" {
		t.Fatalf("checkpoint = %s, want 2026-08-30", got)
	}
}

func TestRecalculateAllIsIdempotentWithinSameDay(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	msk, _ := zones.Resolve("Europe/Moscow")

	seedUser(t, store, 1, 10000, "Europe/Moscow", core.LocalDate{Year: 2026, Month: time.August, Day: 29})
	now := time.Date(2026, time.August, 30, 8, 0, 0, 0, msk)
	p := NewRecalcProcessor(store, zones, nil, 1)

	if _, err := p.RecalculateAll(context.Background(), now); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	first := store.user(1)
	writes := store.balanceWrites

	// Immediate re-run with no elapsed local day.
	advanced, err := p.RecalculateAll(context.Background(), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if advanced != 0 {
		t.Fatalf("second sweep advanced %d users, want 0", advanced)
	}

	second := store.user(1)
	if second.Balance != first.Balance || second.LastRecalcDate != first.LastRecalcDate {
		t.Fatalf("second sweep changed state: %+v -> %+v", first, second)
	}
	if store.balanceWrites != writes {
		t.Fatalf("second sweep wrote the balance again")
	}
}

func TestRecalculateAllSkipsWhenClockMovedBackwards(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	msk, _ := zones.Resolve("Europe/Moscow")

	// Checkpoint is in the future relative to now.
	seedUser(t, store, 1, 10000, "Europe/Moscow", core.LocalDate{Year: 2026, Month: time.September, Day: 2})
	now := time.Date(2026, time.August, 30, 8, 0, 0, 0, msk)

	p := NewRecalcProcessor(store, zones, nil, 1)
	advanced, err := p.RecalculateAll(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if advanced != 0 || store.balanceWrites != 0 {
		t.Fatalf("sweep touched a user ahead of now: advanced=%d writes=%d", advanced, store.balanceWrites)
	}
}

// Transactions at 00:00:01 and 23:59:59 local time fall on different UTC
// calendar dates in an eastern zone, but both belong to the same local
// day and to no other.
func TestRecalculateAllUsesLocalDayBoundaries(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	vlad, _ := zones.Resolve("Asia/Vladivostok") // UTC+10

	seedUser(t, store, 1, 10000, "Asia/Vladivostok", core.LocalDate{Year: 2026, Month: time.August, Day: 29})

	// Both instants are on Aug 30 local; the first is still Aug 29 in UTC.
	spendAt(t, store, 1, 3000, time.Date(2026, time.August, 30, 0, 0, 1, 0, vlad))
	spendAt(t, store, 1, 2000, time.Date(2026, time.August, 30, 23, 59, 59, 0, vlad))

	now := time.Date(2026, time.August, 31, 6, 0, 0, 0, vlad)
	p := NewRecalcProcessor(store, zones, nil, 1)
	if _, err := p.RecalculateAll(context.Background(), now); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// Aug 29: no spend -> +100. Aug 30: 50 spent -> +50. Total 150.
	u := store.user(1)
	if u.Balance.Cents != 15000 {
		t.Fatalf("balance = %d, want 15000", u.Balance.Cents)
	}
}

func TestRecalculateAllFallsBackOnUnknownTimezone(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	msk := zones.Fallback()

	seedUser(t, store, 1, 10000, "Not/AZone", core.LocalDate{Year: 2026, Month: time.August, Day: 29})
	spendAt(t, store, 1, 2500, time.Date(2026, time.August, 29, 15, 0, 0, 0, msk))

	now := time.Date(2026, time.August, 30, 8, 0, 0, 0, msk)
	p := NewRecalcProcessor(store, zones, nil, 1)

	advanced, err := p.RecalculateAll(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep must not fail on unknown timezone: %v", err)
	}
	if advanced != 1 {
		t.Fatalf("advanced = %d, want 1", advanced)
	}
	u := store.user(1)
	if u.Balance.Cents != 7500 {
		t.Fatalf("balance = %d, want 7500", u.Balance.Cents)
	}
}

func TestRecalculateAllIsolatesPerUserFailure(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	msk, _ := zones.Resolve("Europe/Moscow")

	checkpoint := core.LocalDate{Year: 2026, Month: time.August, Day: 29}
	seedUser(t, store, 1, 10000, "Europe/Moscow", checkpoint)
	seedUser(t, store, 2, 10000, "Europe/Moscow", checkpoint)
	store.sumErr[1] = errors.New("disk on fire")

	now := time.Date(2026, time.August, 30, 8, 0, 0, 0, msk)
	p := NewRecalcProcessor(store, zones, nil, 2)

	advanced, err := p.RecalculateAll(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if advanced != 1 {
		t.Fatalf("advanced = %d, want 1", advanced)
	}

	// Failed user keeps the old checkpoint so the next sweep retries.
	if got := store.user(1).LastRecalcDate; got != checkpoint {
		t.Fatalf("failed user checkpoint moved to %s", got)
	}
	if got := store.user(2).LastRecalcDate.String(); got != "2026-08-30" {
		t.Fatalf("healthy user checkpoint = %s, want 2026-08-30", got)
	}
}

// Interleaved sweeps never fold the same day twice: two sweeps two days
// apart produce the same balance as one sweep over the whole span.
func TestRecalculateAllNeverDoubleCounts(t *testing.T) {
	zones := newTestZones(t)
	msk, _ := zones.Resolve("Europe/Moscow")

	checkpoint := core.LocalDate{Year: 2026, Month: time.August, Day: 25}
	spends := []struct {
		day   int
		cents int64
	}{{25, 4000}, {26, 15000}, {28, 7000}}

	run := func(t *testing.T, sweepTimes []time.Time) int64 {
		t.Helper()
		store := newFakeStore()
		seedUser(t, store, 1, 10000, "Europe/Moscow", checkpoint)
		for _, s := range spends {
			spendAt(t, store, 1, s.cents, time.Date(2026, time.August, s.day, 13, 0, 0, 0, msk))
		}
		p := NewRecalcProcessor(store, zones, nil, 1)
		for _, at := range sweepTimes {
			if _, err := p.RecalculateAll(context.Background(), at); err != nil {
				t.Fatalf("sweep at %v: %v", at, err)
			}
		}
		return store.user(1).Balance.Cents
	}

	single := run(t, []time.Time{
		time.Date(2026, time.August, 30, 9, 0, 0, 0, msk),
	})
	split := run(t, []time.Time{
		time.Date(2026, time.August, 27, 9, 0, 0, 0, msk),
		time.Date(2026, time.August, 30, 9, 0, 0, 0, msk),
	})

	// Five days closed: (100-40)+(100-150)+(100)+(100-70)+(100) = 240.
	if single != 24000 {
		t.Fatalf("single sweep balance = %d, want 24000", single)
	}
	if split != single {
		t.Fatalf("split sweeps balance = %d, single sweep = %d", split, single)
	}
}

func TestRecalculateAllPublishesAccrualEvents(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	msk, _ := zones.Resolve("Europe/Moscow")
	rec := &accrualRecorder{}

	seedUser(t, store, 1, 10000, "Europe/Moscow", core.LocalDate{Year: 2026, Month: time.August, Day: 28})
	spendAt(t, store, 1, 4000, time.Date(2026, time.August, 28, 12, 0, 0, 0, msk))

	now := time.Date(2026, time.August, 30, 8, 0, 0, 0, msk)
	p := NewRecalcProcessor(store, zones, rec, 1)
	if _, err := p.RecalculateAll(context.Background(), now); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 accrual events, got %d", len(rec.events))
	}
	first := rec.events[0]
	if first.day.String() != "2026-08-28" || first.spent.Cents != 4000 || first.balance.Cents != 6000 {
		t.Fatalf("unexpected first event: %+v", first)
	}
	second := rec.events[1]
	if second.day.String() != "2026-08-29" || second.spent.Cents != 0 || second.balance.Cents != 16000 {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestRecalculateAllToleratesPublishFailure(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	msk, _ := zones.Resolve("Europe/Moscow")
	rec := &accrualRecorder{err: errors.New("broker gone")}

	seedUser(t, store, 1, 10000, "Europe/Moscow", core.LocalDate{Year: 2026, Month: time.August, Day: 29})
	now := time.Date(2026, time.August, 30, 8, 0, 0, 0, msk)

	p := NewRecalcProcessor(store, zones, rec, 1)
	advanced, err := p.RecalculateAll(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if advanced != 1 {
		t.Fatalf("advanced = %d, want 1; publish failure must not fail the sweep", advanced)
	}
	if got := store.user(1).LastRecalcDate.String(); got != "2026-08-30" {
		t.Fatalf("checkpoint = %s, want 2026-08-30", got)
	}
}

func TestRecalculateAllSkipsInactiveUsers(t *testing.T) {
	store := newFakeStore()
	zones := newTestZones(t)
	msk, _ := zones.Resolve("Europe/Moscow")

	seedUser(t, store, 1, 10000, "Europe/Moscow", core.LocalDate{Year: 2026, Month: time.August, Day: 28})
	if err := store.Deactivate(context.Background(), 1); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	now := time.Date(2026, time.August, 30, 8, 0, 0, 0, msk)
	p := NewRecalcProcessor(store, zones, nil, 1)
	advanced, err := p.RecalculateAll(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if advanced != 0 || store.balanceWrites != 0 {
		t.Fatalf("inactive user was recalculated")
	}
}
