package db

import "database/sql"

// Migrate creates the scans, nodes, files, and warnings tables and their
// indexes if they do not exist, per spec.md §6 ("Store schema"). Idempotent;
// safe to call on every startup.
func Migrate(database *sql.DB) error {
	if _, err := database.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			root_paths TEXT NOT NULL,
			options TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			total_logical_size INTEGER,
			total_allocated_size INTEGER,
			dir_count INTEGER,
			file_count INTEGER,
			warning_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_status_started ON scans(status, started_at DESC)`,

		`CREATE TABLE IF NOT EXISTS nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			parent_path TEXT,
			depth INTEGER NOT NULL,
			is_dir INTEGER NOT NULL,
			logical_size INTEGER NOT NULL,
			allocated_size INTEGER NOT NULL,
			file_count INTEGER NOT NULL,
			dir_count INTEGER NOT NULL,
			mtime INTEGER,
			atime INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_scan_path ON nodes(scan_id, path)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_scan_isdir ON nodes(scan_id, is_dir)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_scan_parent ON nodes(scan_id, parent_path)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_scan_isdir_alloc ON nodes(scan_id, is_dir, allocated_size DESC)`,

		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			parent_path TEXT,
			logical_size INTEGER NOT NULL,
			allocated_size INTEGER NOT NULL,
			mtime INTEGER,
			atime INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_files_scan_parent ON files(scan_id, parent_path)`,
		`CREATE INDEX IF NOT EXISTS idx_files_scan_alloc ON files(scan_id, allocated_size DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_files_scan_path ON files(scan_id, path)`,

		`CREATE TABLE IF NOT EXISTS warnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			code TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_warnings_scan ON warnings(scan_id)`,
	}
	for _, stmt := range stmts {
		if _, err := database.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
