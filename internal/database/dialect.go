package database

// Dialect names the SQL flavour spoken by the open store.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// LockRows is appended to SELECT statements that read rows a transaction is
// about to update.  InnoDB needs an explicit row lock; SQLite already
// serializes writers, and this service runs it on a single connection.
func (d Dialect) LockRows() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// InsertIgnore is the INSERT prefix that skips rows whose key already exists.
func (d Dialect) InsertIgnore() string {
	if d == MySQL {
		return "INSERT IGNORE INTO"
	}
	return "INSERT OR IGNORE INTO"
}
