package cas

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver
)

// sqliteDSNOptions tune the embedded database for a single-process,
// ephemeral-per-start index: never shared with another process,
// rebuilt from scratch on every startup rescan.
const sqliteDSNOptions = "?_busy_timeout=5000&_txlock=immediate"

// sqliteDirectoriesIndex stores the forward and inverse mappings in a
// two-table SQLite database: entries(path, directory) and
// directories(directory, entries).
type sqliteDirectoriesIndex struct {
	path string
	db   *sql.DB
}

func newSQLiteDirectoriesIndex(path string) DirectoriesIndex {
	return &sqliteDirectoriesIndex{path: path}
}

func (di *sqliteDirectoriesIndex) Start() error {
	db, err := sql.Open("sqlite3", di.path+sqliteDSNOptions)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS directories (
			directory TEXT PRIMARY KEY,
			entries   TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			path      TEXT NOT NULL,
			directory TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS entries_path ON entries(path)`); err != nil {
		db.Close()
		return err
	}
	di.db = db
	return nil
}

func (di *sqliteDirectoriesIndex) Close() error {
	if di.db == nil {
		return nil
	}
	return di.db.Close()
}

func (di *sqliteDirectoriesIndex) Put(directoryKey string, blobKeys []string) error {
	tx, err := di.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM directories WHERE directory = ?`, directoryKey); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE directory = ?`, directoryKey); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO directories (directory, entries) VALUES (?, ?)`,
		directoryKey, strings.Join(blobKeys, "\n"),
	); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO entries (path, directory) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, blobKey := range blobKeys {
		if _, err := stmt.Exec(blobKey, directoryKey); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (di *sqliteDirectoriesIndex) DirectoryEntries(directoryKey string) ([]string, error) {
	var joined string
	err := di.db.QueryRow(`SELECT entries FROM directories WHERE directory = ?`, directoryKey).Scan(&joined)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if joined == "" {
		return nil, nil
	}
	return strings.Split(joined, "\n"), nil
}

func (di *sqliteDirectoriesIndex) Remove(directoryKey string) error {
	tx, err := di.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM directories WHERE directory = ?`, directoryKey); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE directory = ?`, directoryKey); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveEntry issues a single DELETE ... RETURNING directory, then
// removes each returned directory's forward row.
func (di *sqliteDirectoriesIndex) RemoveEntry(blobKey string) ([]string, error) {
	tx, err := di.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`DELETE FROM entries WHERE path = ? RETURNING directory`, blobKey)
	if err != nil {
		return nil, err
	}
	var affected []string
	for rows.Next() {
		var directoryKey string
		if err := rows.Scan(&directoryKey); err != nil {
			rows.Close()
			return nil, err
		}
		affected = append(affected, directoryKey)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, directoryKey := range affected {
		if _, err := tx.Exec(`DELETE FROM directories WHERE directory = ?`, directoryKey); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(`DELETE FROM entries WHERE directory = ?`, directoryKey); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return affected, nil
}
