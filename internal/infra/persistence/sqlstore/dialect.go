// Package sqlstore implements domain.PersistentStore on database/sql. The
// sqlite and postgres packages supply a Dialect and a driver; the lifecycle
// semantics (conditional status update, history append, anonymization) live
// here once.
package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeLayout is fixed width so text-encoded timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Dialect captures the differences between SQL backends.
type Dialect struct {
	// Name identifies the dialect in errors and logs.
	Name string
	// DDL is the schema bundle applied by Migrate.
	DDL string
	// NumberedPlaceholders rewrites ? into $1, $2, ... when true.
	NumberedPlaceholders bool
	// TextTimestamps stores timestamps as fixed-width UTC text when true.
	TextTimestamps bool
	// BufferStreams drains query rows before invoking stream callbacks. Set it
	// for pools pinned to one connection so callbacks may query the store.
	BufferStreams bool
	// UniqueViolation reports whether a driver error is a unique constraint
	// failure. Nil treats every error as opaque.
	UniqueViolation func(error) bool
}

// isUniqueViolation applies d.UniqueViolation when set.
func (d Dialect) isUniqueViolation(err error) bool {
	return err != nil && d.UniqueViolation != nil && d.UniqueViolation(err)
}

// Rebind rewrites ? placeholders for the dialect. Queries in this package
// never contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Time encodes a timestamp parameter.
func (d Dialect) Time(t time.Time) any {
	if d.TextTimestamps {
		return t.UTC().Format(timeLayout)
	}
	return t.UTC()
}

// scanTime accepts the representations drivers return for timestamp columns.
type scanTime struct {
	Time  time.Time
	Valid bool
}

func (s *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		s.Time, s.Valid = time.Time{}, false
		return nil
	case time.Time:
		s.Time, s.Valid = v.UTC(), true
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (s *scanTime) parse(v string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			s.Time, s.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", v)
}

func (s scanTime) ptr() *time.Time {
	if !s.Valid {
		return nil
	}
	t := s.Time
	return &t
}
