package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/shatag/internal/apperr"
)

// DefaultLimit caps List results when no limit is given.
const DefaultLimit = 100

// Entry is one recorded verification.
type Entry struct {
	ID              int64     `json:"id"`
	Path            string    `json:"path"`
	Outcome         string    `json:"outcome"`
	StoredChecksum  *string   `json:"stored_checksum"`
	StoredTimestamp *int64    `json:"stored_timestamp"`
	ActualChecksum  string    `json:"actual_checksum"`
	ActualTimestamp int64     `json:"actual_timestamp"`
	Error           string    `json:"error,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Filter narrows List and Latest queries. Zero fields match everything.
type Filter struct {
	Path    string
	Outcome string
	Limit   int
}

const selectColumns = `id, path, outcome, stored_checksum, stored_ts,
	actual_checksum, actual_ts, error, checked_at`

// Record appends e and returns its id. A zero CheckedAt is set to now.
func (db *DB) Record(e Entry) (int64, error) {
	if e.CheckedAt.IsZero() {
		e.CheckedAt = time.Now()
	}
	res, err := db.conn.Exec(`
		INSERT INTO checks (path, outcome, stored_checksum, stored_ts,
			actual_checksum, actual_ts, error, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Path, e.Outcome, e.StoredChecksum, e.StoredTimestamp,
		e.ActualChecksum, e.ActualTimestamp, e.Error, e.CheckedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: record: %w", err)
	}
	return res.LastInsertId()
}

// List returns matching entries, newest first.
func (db *DB) List(f Filter) ([]Entry, error) {
	where, args := f.where()
	q := `SELECT ` + selectColumns + ` FROM checks` + where + ` ORDER BY id DESC LIMIT ?`
	return db.query(q, append(args, f.limit())...)
}

// Latest returns the newest entry of each path whose newest entry matches
// the filter's outcome, newest first. Filter.Path is ignored.
func (db *DB) Latest(f Filter) ([]Entry, error) {
	q := `SELECT ` + selectColumns + ` FROM checks
		WHERE id IN (SELECT MAX(id) FROM checks GROUP BY path)`
	var args []any
	if f.Outcome != "" {
		q += ` AND outcome = ?`
		args = append(args, f.Outcome)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	return db.query(q, append(args, f.limit())...)
}

// LastFor returns the newest entry recorded for path, or
// apperr.ErrNotFound when path was never verified.
func (db *DB) LastFor(path string) (Entry, error) {
	entries, err := db.List(Filter{Path: path, Limit: 1})
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("history: %s: %w", path, apperr.ErrNotFound)
	}
	return entries[0], nil
}

func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Path != "" {
		conds = append(conds, "path = ?")
		args = append(args, f.Path)
	}
	if f.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

func (db *DB) query(q string, args ...any) ([]Entry, error) {
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			storedSum sql.NullString
			storedTs  sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Path, &e.Outcome, &storedSum, &storedTs,
			&e.ActualChecksum, &e.ActualTimestamp, &e.Error, &e.CheckedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if storedSum.Valid {
			e.StoredChecksum = &storedSum.String
		}
		if storedTs.Valid {
			e.StoredTimestamp = &storedTs.Int64
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
