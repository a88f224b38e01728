package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/raffle-ledger/internal/model"
)

// seedBatch bounds the number of rows per INSERT so the statement stays
// well under both backends' placeholder limits.
const seedBatch = 1000

// Seed allocates the fixed ticket pool.  It is a no-op when all
// model.TicketCount rows are present; otherwise it inserts the missing
// numbers as available in one transaction, leaving existing rows untouched.
// It returns the number of rows inserted.
func Seed(ctx context.Context, db *sql.DB, d Dialect) (int64, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	if count >= model.TicketCount {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var inserted int64
	for start := 1; start <= model.TicketCount; start += seedBatch {
		end := start + seedBatch - 1
		if end > model.TicketCount {
			end = model.TicketCount
		}
		var sb strings.Builder
		sb.WriteString(d.InsertIgnore())
		sb.WriteString(" tickets (number, status) VALUES ")
		args := make([]interface{}, 0, end-start+1)
		for n := start; n <= end; n++ {
			if n > start {
				sb.WriteString(",")
			}
			sb.WriteString("(?, 'available')")
			args = append(args, n)
		}
		res, err := tx.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return 0, fmt.Errorf("seed tickets %d-%d: %w", start, end, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return inserted, nil
}

// Init migrates the schema and seeds the ticket pool.
func Init(ctx context.Context, db *sql.DB, d Dialect) (int64, error) {
	if err := Migrate(ctx, db, d); err != nil {
		return 0, err
	}
	return Seed(ctx, db, d)
}
