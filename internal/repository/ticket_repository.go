package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iliyamo/raffle-ledger/internal/database"
	"github.com/iliyamo/raffle-ledger/internal/model"
)

// dbTimeLayout is the DATETIME text format written to both backends.  A
// fixed-width layout keeps SQLite's textual comparisons in time order.
const dbTimeLayout = "2006-01-02 15:04:05"

// maxTxAttempts bounds how often a transaction aborted by a deadlock or a
// busy database is replayed.  Every attempt is all-or-nothing.
const maxTxAttempts = 3

// TicketRepo provides atomic access to the tickets table.  Every mutating
// method runs in its own transaction; callers never see a partial
// transition.  All timestamps are stored in UTC.
type TicketRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewTicketRepo returns a TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB, d database.Dialect) *TicketRepo {
	return &TicketRepo{db: db, dialect: d}
}

// DB exposes the underlying handle for health checks.
func (r *TicketRepo) DB() *sql.DB { return r.db }

// ListAll returns the number and status of every ticket ordered by number.
func (r *TicketRepo) ListAll(ctx context.Context) ([]model.TicketStatus, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT number, status FROM tickets ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TicketStatus, 0, model.TicketCount)
	for rows.Next() {
		var ts model.TicketStatus
		if err := rows.Scan(&ts.Number, &ts.Status); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// ListActive returns reserved and sold tickets, newest reservation first.
// Rows without a timestamp sort last; ties are ordered by number.
func (r *TicketRepo) ListActive(ctx context.Context) ([]model.Ticket, error) {
	const q = `SELECT number, status, holder_name, holder_contact, reservation_date
	           FROM tickets
	           WHERE status IN ('reserved', 'sold')
	           ORDER BY reservation_date IS NULL, reservation_date DESC, number ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountByStatus returns how many tickets are in each state.  States with no
// tickets are present with a zero count.
func (r *TicketRepo) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[model.Status]int{
		model.StatusAvailable: 0,
		model.StatusReserved:  0,
		model.StatusSold:      0,
	}
	for rows.Next() {
		var s model.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

// Get returns a single ticket.  It returns sql.ErrNoRows for numbers
// outside the pool.
func (r *TicketRepo) Get(ctx context.Context, number int) (model.Ticket, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT number, status, holder_name, holder_contact, reservation_date FROM tickets WHERE number = ?`, number)
	return scanTicket(row)
}

// Reserve claims every ticket in numbers for holder, stamping at as the
// reservation time.  The availability check and the claim run in one
// transaction: the rows are lock-read in ascending order, and if any of
// them is not available (or does not exist) the transaction is rolled back
// and a *ConflictError listing those numbers is returned.
//
// numbers must be non-empty and free of duplicates.
func (r *TicketRepo) Reserve(ctx context.Context, numbers []int, holder model.Holder, at time.Time) error {
	if len(numbers) == 0 {
		return nil
	}
	sorted := sortedCopy(numbers)
	stamp := at.UTC().Format(dbTimeLayout)

	return r.withTx(ctx, func(tx *sql.Tx) error {
		in, args := inClause(sorted)
		rows, err := tx.QueryContext(ctx,
			`SELECT number, status FROM tickets WHERE number IN (`+in+`) ORDER BY number`+r.dialect.LockRows(),
			args...)
		if err != nil {
			return err
		}
		free := make(map[int]bool, len(sorted))
		for rows.Next() {
			var n int
			var s model.Status
			if err := rows.Scan(&n, &s); err != nil {
				rows.Close()
				return err
			}
			free[n] = s == model.StatusAvailable
		}
		if err := rows.Close(); err != nil {
			return err
		}

		var taken []int
		for _, n := range sorted {
			if !free[n] {
				taken = append(taken, n)
			}
		}
		if len(taken) > 0 {
			return &ConflictError{Numbers: taken}
		}

		upd := append([]interface{}{holder.Name, holder.Contact, stamp}, args...)
		res, err := tx.ExecContext(ctx,
			`UPDATE tickets SET status = 'reserved', holder_name = ?, holder_contact = ?, reservation_date = ?
			 WHERE number IN (`+in+`) AND status = 'available'`,
			upd...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != int64(len(sorted)) {
			return fmt.Errorf("reserve: updated %d of %d tickets", n, len(sorted))
		}
		return nil
	})
}

// Approve marks every currently reserved ticket in numbers as sold and
// returns those tickets (holder data retained).  Tickets that are
// available, already sold or outside the pool are left untouched.
func (r *TicketRepo) Approve(ctx context.Context, numbers []int) ([]model.Ticket, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	sorted := sortedCopy(numbers)
	var approved []model.Ticket

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		approved = approved[:0]
		in, args := inClause(sorted)
		rows, err := tx.QueryContext(ctx,
			`SELECT number, status, holder_name, holder_contact, reservation_date
			 FROM tickets WHERE number IN (`+in+`) AND status = 'reserved' ORDER BY number`+r.dialect.LockRows(),
			args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				rows.Close()
				return err
			}
			approved = append(approved, t)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if len(approved) == 0 {
			return nil
		}

		ids := make([]int, len(approved))
		for i, t := range approved {
			ids[i] = t.Number
		}
		in, args = inClause(ids)
		res, err := tx.ExecContext(ctx,
			`UPDATE tickets SET status = 'sold' WHERE number IN (`+in+`) AND status = 'reserved'`, args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != int64(len(ids)) {
			return fmt.Errorf("approve: updated %d of %d tickets", n, len(ids))
		}
		for i := range approved {
			approved[i].Status = model.StatusSold
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// Release returns every listed ticket that is reserved or sold to the
// available pool, clearing holder data, and reports how many rows changed.
func (r *TicketRepo) Release(ctx context.Context, numbers []int) (int64, error) {
	if len(numbers) == 0 {
		return 0, nil
	}
	sorted := sortedCopy(numbers)
	var changed int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		in, args := inClause(sorted)
		res, err := tx.ExecContext(ctx,
			`UPDATE tickets SET status = 'available', holder_name = NULL, holder_contact = NULL, reservation_date = NULL
			 WHERE number IN (`+in+`) AND status <> 'available'`, args...)
		if err != nil {
			return err
		}
		changed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// ExpireReservedBefore releases every reserved ticket whose reservation
// time is strictly before cutoff and returns the released numbers in
// ascending order.  Sold tickets are never touched, so an approval that
// commits first always wins over the sweep.
func (r *TicketRepo) ExpireReservedBefore(ctx context.Context, cutoff time.Time) ([]int, error) {
	stamp := cutoff.UTC().Format(dbTimeLayout)
	var expired []int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		expired = expired[:0]
		rows, err := tx.QueryContext(ctx,
			`SELECT number FROM tickets WHERE status = 'reserved' AND reservation_date < ? ORDER BY number`+r.dialect.LockRows(),
			stamp)
		if err != nil {
			return err
		}
		for rows.Next() {
			var n int
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return err
			}
			expired = append(expired, n)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		in, args := inClause(expired)
		args = append(args, stamp)
		_, err = tx.ExecContext(ctx,
			`UPDATE tickets SET status = 'available', holder_name = NULL, holder_contact = NULL, reservation_date = NULL
			 WHERE number IN (`+in+`) AND status = 'reserved' AND reservation_date < ?`, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// withTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.  Transactions aborted by a deadlock, a lock wait
// timeout or a busy database are replayed up to maxTxAttempts times.
func (r *TicketRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
	return err
}

func (r *TicketRepo) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// retryable reports whether err aborted a transaction that can safely be
// replayed from the start.
func retryable(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1213, // ER_LOCK_DEADLOCK
			1205: // ER_LOCK_WAIT_TIMEOUT
			return true
		}
		return false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(s rowScanner) (model.Ticket, error) {
	var (
		t       model.Ticket
		name    sql.NullString
		contact sql.NullString
		date    sql.NullString
	)
	if err := s.Scan(&t.Number, &t.Status, &name, &contact, &date); err != nil {
		return model.Ticket{}, err
	}
	if name.Valid {
		v := name.String
		t.HolderName = &v
	}
	if contact.Valid {
		v := contact.String
		t.HolderContact = &v
	}
	if date.Valid {
		ts, err := parseDBTime(date.String)
		if err != nil {
			return model.Ticket{}, fmt.Errorf("ticket %d: %w", t.Number, err)
		}
		t.ReservationDate = &ts
	}
	return t, nil
}

// parseDBTime accepts the layouts the drivers hand back for a DATETIME
// scanned into a string: the raw column text, or a time.Time that
// database/sql rendered as RFC 3339.
func parseDBTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dbTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// inClause returns "?, ?, ?" with one placeholder per number and the
// matching argument slice.
func inClause(numbers []int) (string, []interface{}) {
	args := make([]interface{}, len(numbers))
	for i, n := range numbers {
		args[i] = n
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(numbers)), ", "), args
}

func sortedCopy(numbers []int) []int {
	out := append([]int(nil), numbers...)
	sort.Ints(out)
	return out
}
