package db

import (
	"database/sql"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// busyTimeoutMS is how long SQLite waits (ms) before returning SQLITE_BUSY when locked.
// Applied per-connection via DSN so all pool connections get it (aggregator writers + HTTP readers).
const busyTimeoutMS = 30000 // 30 seconds

// readOnlyBusyTimeoutMS is used for the read-only connection pool. In WAL mode readers
// don't block on writers, so this is a fallback; keep it short so query handlers don't hang
// behind a running scan.
const readOnlyBusyTimeoutMS = 5000 // 5 seconds

// Open opens a SQLite database at path and applies the store tuning from
// spec.md §4.4 ("Store tuning"): WAL journal mode, NORMAL synchronous,
// foreign-key enforcement, a busy-wait timeout, a sizable page cache and
// mmap region, and in-memory temp tables. These are not optional for the
// engine to meet its throughput target under bursty writes. The caller
// must call db.Close() when done. For in-memory DB use path ":memory:";
// the URI form file::memory:?cache=shared is used so all connections in
// the pool share the same database (otherwise each connection gets its
// own empty DB).
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_busy_timeout=" + strconv.Itoa(busyTimeoutMS)
	} else {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_busy_timeout=" + strconv.Itoa(busyTimeoutMS)
	}
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, err
	}
	if err := tuneConnection(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// tuneConnection applies the pragmas the engine depends on for throughput
// under bursty small-file writes. Skipping these is a documented
// reimplementation hazard (spec.md §9).
func tuneConnection(database *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-65536",   // ~64MB page cache, negative = KB
		"PRAGMA mmap_size=268435456", // 256MB mmap region
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// VariableLimit is the SQLite default bound-parameter ceiling per statement.
// InsertNodesBatch and InsertFilesBatch compute their chunk sizes from this
// alone (batch_size plays no part), so no configuration can produce a "too
// many SQL variables" error
// (spec.md §4.4, §9 "Variable-limit chunking").
const VariableLimit = 999

// OpenReadOnly opens a read-only SQLite connection to the same database file.
// In WAL mode, readers don't block on writers, so query handlers stay
// responsive while a scan is writing. Returns (nil, nil) for ":memory:".
// Caller should call Close() when done; use this for a separate read-only pool.
func OpenReadOnly(path string) (*sql.DB, error) {
	if path == ":memory:" {
		return nil, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	// URI with mode=ro; forward slashes for SQLite URI
	uri := "file:" + filepath.ToSlash(abs) + "?mode=ro&_busy_timeout=" + strconv.Itoa(readOnlyBusyTimeoutMS)
	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
