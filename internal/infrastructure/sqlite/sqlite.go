// Package sqlite reads the beats exports (packetbeat flows, journalbeat
// conntrack events, filebeat OpenVPN events) saved as SQLite databases.
package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"flowattr-lab/internal/domain/models"
)

// Open opens an export database read-only
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, nil
}

// Exports stores timestamps as ISO 8601 text; julianday compares them
// whatever their separator or zone suffix.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// windowArgs returns the window bounds as query arguments. A zero window
// spans all time.
func windowArgs(tf models.Timeframe) (string, string) {
	if tf.Start.IsZero() && tf.End.IsZero() {
		return formatTime(time.Unix(0, 0)), formatTime(time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
	}
	return formatTime(tf.Start), formatTime(tf.End)
}

var textLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTime reads a timestamp stored as text
func parseTime(s string) (time.Time, error) {
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// nullText treats the literal "NULL" some exports wrote for missing values
// as absent
func nullText(n sql.NullString) string {
	if !n.Valid || n.String == "NULL" {
		return ""
	}
	return n.String
}

func nullPort(n sql.NullString) *int {
	v, err := strconv.Atoi(nullText(n))
	if err != nil {
		return nil
	}
	return &v
}
