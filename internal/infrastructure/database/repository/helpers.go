package repository

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"flowattr-lab/internal/domain/models"
)

// Text conversion helpers

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func nullTextToString(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// Port conversion helpers

func portToInt4(p *int) pgtype.Int4 {
	if p == nil {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(*p), Valid: true}
}

func int4ToPort(i pgtype.Int4) *int {
	if !i.Valid {
		return nil
	}
	p := int(i.Int32)
	return &p
}

// Timestamp conversion helpers

func timeToTimestamptzPtr(t *time.Time) pgtype.Timestamptz {
	if t == nil || t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timestamptzToTimePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Time.UTC()
	return &ts
}

// windowBounds turns a timeframe into query bounds. A zero timeframe spans
// all time.
func windowBounds(tf models.Timeframe) (time.Time, time.Time) {
	if tf.Start.IsZero() && tf.End.IsZero() {
		return time.Unix(0, 0).UTC(), time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return tf.Start, tf.End
}
