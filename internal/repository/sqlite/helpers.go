package sqlite

import (
	"database/sql"
	"time"
)

// timeToNull converts a time to sql.NullTime, treating the zero time as
// NULL so open-ended collection windows round-trip cleanly
func timeToNull(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// nullToTime converts sql.NullTime back to a time, NULL to the zero time
func nullToTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time
}
