package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/raffle-ledger/internal/database"
	"github.com/iliyamo/raffle-ledger/internal/model"
)

func newTestRepo(t *testing.T) *TicketRepo {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "raffle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = database.Init(context.Background(), db, database.SQLite)
	require.NoError(t, err)
	return NewTicketRepo(db, database.SQLite)
}

func assertInvariants(t *testing.T, r *TicketRepo) {
	t.Helper()
	rows, err := r.db.Query(`SELECT number, status, holder_name, holder_contact, reservation_date FROM tickets`)
	require.NoError(t, err)
	defer rows.Close()
	count := 0
	for rows.Next() {
		tk, err := scanTicket(rows)
		require.NoError(t, err)
		assert.Truef(t, tk.Consistent(), "ticket %d violates holder invariant: %+v", tk.Number, tk)
		count++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, model.TicketCount, count)
}

var (
	ana  = model.Holder{Name: "Ana", Contact: "ana@x.com"}
	luis = model.Holder{Name: "Luis", Contact: "l@x.com"}
)

func TestListAllReturnsWholePool(t *testing.T) {
	r := newTestRepo(t)
	all, err := r.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, model.TicketCount)
	assert.Equal(t, 1, all[0].Number)
	assert.Equal(t, model.TicketCount, all[len(all)-1].Number)
	for _, ts := range all {
		assert.Equal(t, model.StatusAvailable, ts.Status)
	}
}

func TestReserveConflictKeepsFirstHolder(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	require.NoError(t, r.Reserve(ctx, []int{5}, ana, time.Now()))

	err := r.Reserve(ctx, []int{5}, luis, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []int{5}, conflict.Numbers)
	assert.Equal(t, []string{"00005"}, conflict.Labels())

	tk, err := r.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, tk.Status)
	require.NotNil(t, tk.HolderName)
	assert.Equal(t, "Ana", *tk.HolderName)
}

func TestReserveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	require.NoError(t, r.Reserve(ctx, []int{3, 9}, ana, time.Now()))

	err := r.Reserve(ctx, []int{9, 1, 2, 3}, luis, time.Now())
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []int{3, 9}, conflict.Numbers)

	for _, n := range []int{1, 2} {
		tk, err := r.Get(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, model.StatusAvailable, tk.Status, "ticket %d", n)
	}
	assertInvariants(t, r)
}

func TestReserveUnknownNumberConflicts(t *testing.T) {
	r := newTestRepo(t)
	err := r.Reserve(context.Background(), []int{1, model.TicketCount + 1}, ana, time.Now())
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []int{model.TicketCount + 1}, conflict.Numbers)
}

func TestApproveRetainsHolder(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	phone := model.Holder{Name: "Ana", Contact: "5511112222"}
	require.NoError(t, r.Reserve(ctx, []int{1, 2, 3}, phone, time.Now()))

	approved, err := r.Approve(ctx, []int{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, approved, 3)
	for i, tk := range approved {
		assert.Equal(t, i+1, tk.Number)
		assert.Equal(t, model.StatusSold, tk.Status)
		h, ok := tk.Holder()
		require.True(t, ok)
		assert.Equal(t, phone, h)
	}

	for n := 1; n <= 3; n++ {
		tk, err := r.Get(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSold, tk.Status)
		assert.NotNil(t, tk.ReservationDate)
	}

	changed, err := r.Release(ctx, []int{1, 2, 3})
	require.NoError(t, err)
	assert.EqualValues(t, 3, changed)
	for n := 1; n <= 3; n++ {
		tk, err := r.Get(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, model.StatusAvailable, tk.Status)
		assert.Nil(t, tk.HolderName)
		assert.Nil(t, tk.HolderContact)
		assert.Nil(t, tk.ReservationDate)
	}
}

func TestApproveAndReleaseIgnoreAvailableAndUnknown(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	require.NoError(t, r.Reserve(ctx, []int{10}, ana, time.Now()))

	approved, err := r.Approve(ctx, []int{0, 10, 11, model.TicketCount + 5})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, 10, approved[0].Number)

	again, err := r.Approve(ctx, []int{10})
	require.NoError(t, err)
	assert.Empty(t, again)

	changed, err := r.Release(ctx, []int{-1, 11, 12, model.TicketCount + 5})
	require.NoError(t, err)
	assert.Zero(t, changed)

	assertInvariants(t, r)
}

func TestExpireReservedBefore(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	now := time.Now().UTC()

	require.NoError(t, r.Reserve(ctx, []int{1, 2}, ana, now.Add(-13*time.Hour)))
	require.NoError(t, r.Reserve(ctx, []int{3}, luis, now.Add(-time.Hour)))
	require.NoError(t, r.Reserve(ctx, []int{4}, luis, now.Add(-20*time.Hour)))
	_, err := r.Approve(ctx, []int{4})
	require.NoError(t, err)

	expired, err := r.ExpireReservedBefore(ctx, now.Add(-12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, expired)

	for n, want := range map[int]model.Status{1: model.StatusAvailable, 2: model.StatusAvailable, 3: model.StatusReserved, 4: model.StatusSold} {
		tk, err := r.Get(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, want, tk.Status, "ticket %d", n)
	}

	expired, err = r.ExpireReservedBefore(ctx, now.Add(-12*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
	assertInvariants(t, r)
}

func TestApproveRacingExpiryLeavesConsistentTickets(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	numbers := []int{40, 41, 42}

	const rounds = 20
	for round := 0; round < rounds; round++ {
		now := time.Now().UTC()
		require.NoError(t, r.Reserve(ctx, numbers, ana, now.Add(-13*time.Hour)))

		var (
			wg       sync.WaitGroup
			approved []model.Ticket
			expired  []int
			errA     error
			errE     error
		)
		wg.Add(2)
		go func() { defer wg.Done(); approved, errA = r.Approve(ctx, numbers) }()
		go func() { defer wg.Done(); expired, errE = r.ExpireReservedBefore(ctx, now.Add(-12*time.Hour)) }()
		wg.Wait()
		require.NoError(t, errA)
		require.NoError(t, errE)
		assert.Equal(t, len(numbers), len(approved)+len(expired), "round %d", round)

		for _, n := range numbers {
			tk, err := r.Get(ctx, n)
			require.NoError(t, err)
			switch tk.Status {
			case model.StatusSold:
				h, ok := tk.Holder()
				require.True(t, ok, "round %d ticket %d", round, n)
				assert.Equal(t, ana, h)
				require.NotNil(t, tk.ReservationDate)
			case model.StatusAvailable:
				assert.Nil(t, tk.HolderName)
				assert.Nil(t, tk.HolderContact)
				assert.Nil(t, tk.ReservationDate)
			default:
				t.Fatalf("round %d ticket %d left %s", round, n, tk.Status)
			}
		}
		assertInvariants(t, r)

		_, err := r.Release(ctx, numbers)
		require.NoError(t, err)
	}
}

func TestListActiveOrderAndContents(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, r.Reserve(ctx, []int{20}, ana, base))
	require.NoError(t, r.Reserve(ctx, []int{30, 31}, luis, base.Add(time.Hour)))
	_, err := r.Approve(ctx, []int{20})
	require.NoError(t, err)

	list, err := r.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{30, 31, 20}, []int{list[0].Number, list[1].Number, list[2].Number})
	for _, tk := range list {
		assert.NotEqual(t, model.StatusAvailable, tk.Status)
		require.NotNil(t, tk.HolderName)
		require.NotNil(t, tk.HolderContact)
		assert.NotEmpty(t, *tk.HolderName)
		assert.NotEmpty(t, *tk.HolderContact)
	}
	require.NotNil(t, list[0].ReservationDate)
	assert.True(t, list[0].ReservationDate.Equal(base.Add(time.Hour)))

	counts, err := r.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.TicketCount-3, counts[model.StatusAvailable])
	assert.Equal(t, 2, counts[model.StatusReserved])
	assert.Equal(t, 1, counts[model.StatusSold])
}

func TestConcurrentOverlappingReservations(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	a := []int{100, 101, 102}
	b := []int{102, 103}

	const rounds = 8
	for round := 0; round < rounds; round++ {
		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errs[0] = r.Reserve(ctx, a, ana, time.Now()) }()
		go func() { defer wg.Done(); errs[1] = r.Reserve(ctx, b, luis, time.Now()) }()
		wg.Wait()

		successes := 0
		for i, err := range errs {
			if err == nil {
				successes++
				continue
			}
			var conflict *ConflictError
			require.Truef(t, errors.As(err, &conflict), "call %d: unexpected error %v", i, err)
			assert.Equal(t, []int{102}, conflict.Numbers)
		}
		assert.Equal(t, 1, successes, "round %d", round)

		tk, err := r.Get(ctx, 102)
		require.NoError(t, err)
		assert.Equal(t, model.StatusReserved, tk.Status)
		assertInvariants(t, r)

		_, err = r.Release(ctx, []int{100, 101, 102, 103})
		require.NoError(t, err)
	}
}

func TestConcurrentDisjointReservationsAllSucceed(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := 500 + i*2
			errs[i] = r.Reserve(ctx, []int{n, n + 1}, model.Holder{Name: "P", Contact: "p@x.com"}, time.Now())
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}
	counts, err := r.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, counts[model.StatusReserved])
}

func TestParseDBTime(t *testing.T) {
	want := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	for _, s := range []string{"2025-06-01 12:30:00", "2025-06-01T12:30:00Z", "2025-06-01 12:30:00+00:00"} {
		got, err := parseDBTime(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := parseDBTime("yesterday")
	assert.Error(t, err)
}

func TestInClause(t *testing.T) {
	in, args := inClause([]int{4, 5, 6})
	assert.Equal(t, "?, ?, ?", in)
	assert.Equal(t, []interface{}{4, 5, 6}, args)
}
