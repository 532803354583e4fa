package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout is the fixed-width UTC text form this package writes. Rows from the
// sync pipeline may use any layout parseTime accepts, so queries compare and
// order timestamps through julianday() rather than as text.
const timeLayout = "2006-01-02T15:04:05.000Z"

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// formatTime renders t for storage. A zero time becomes NULL.
func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the stored layout plus the looser forms a sync pipeline
// may have written.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// parseNullTime maps NULL and empty strings to the zero time.
func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return parseTime(s.String)
}

// encodeIDs renders a list for binding with json_each(?). A nil list encodes
// as an empty array.
func encodeIDs[T ~string](ids []T) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

// decodeIDs reads a JSON array column. Malformed values decode as empty.
func decodeIDs(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(s.String), &ids); err != nil {
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
