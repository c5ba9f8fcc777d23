package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// timeLayouts covers the text encodings SQLite drivers write for
// timestamps; Postgres hands back time.Time directly.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// nullTime scans timestamps stored natively or as text.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(value any) error {
	switch typed := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = typed.UTC(), true
		return nil
	case string:
		return n.parse(typed)
	case []byte:
		return n.parse(string(typed))
	default:
		return fmt.Errorf("storage: cannot scan %T into timestamp", value)
	}
}

func (n *nullTime) parse(text string) error {
	text = strings.TrimSpace(text)
	if index := strings.Index(text, " m="); index >= 0 {
		text = text[:index]
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			n.Time, n.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("storage: unrecognized timestamp %q", text)
}

func (n nullTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	value := n.Time
	return &value
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return normalize(*value)
}

func stringOrEmpty(value sql.NullString) string {
	if value.Valid {
		return value.String
	}
	return ""
}
