package stock

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now". Engine code never calls time.Now directly.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns T. Used in tests.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// =============================================================================
// TIMESTAMP - stored instant that survives bad data
// =============================================================================

// StorageLayout is the fixed-width UTC layout written by the stores.
// Fixed width keeps lexical order equal to chronological order.
const StorageLayout = "2006-01-02T15:04:05.000000Z"

// readLayouts are tried in order when parsing stored text.
var readLayouts = []string{
	StorageLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite CURRENT_TIMESTAMP, UTC
	"2006-01-02T15:04:05",
}

// Timestamp is a persisted instant. Raw keeps the stored text so a row with
// an unreadable value can still be loaded and reported on its own.
type Timestamp struct {
	Time time.Time
	Raw  string
}

// NewTimestamp wraps a known-good instant.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// IsNull reports whether nothing was stored.
func (t Timestamp) IsNull() bool {
	return t.Time.IsZero() && strings.TrimSpace(t.Raw) == ""
}

// Parse returns the instant or ErrInvalidTimestamp. A null timestamp returns
// the zero time and no error; callers check IsNull first.
func (t Timestamp) Parse() (time.Time, error) {
	if !t.Time.IsZero() {
		return t.Time, nil
	}
	raw := strings.TrimSpace(t.Raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range readLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// Ptr returns the parsed instant or nil when null or invalid.
func (t Timestamp) Ptr() *time.Time {
	if t.IsNull() {
		return nil
	}
	parsed, err := t.Parse()
	if err != nil {
		return nil
	}
	return &parsed
}

// Scan implements sql.Scanner. It never fails on content, only on type.
func (t *Timestamp) Scan(value any) error {
	*t = Timestamp{}
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		t.Raw = v
	case []byte:
		t.Raw = string(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}
	if parsed, err := t.Parse(); err == nil {
		t.Time = parsed
	}
	return nil
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	if t.IsNull() {
		return nil, nil
	}
	if t.Time.IsZero() {
		return t.Raw, nil
	}
	return FormatTime(t.Time), nil
}

func (t Timestamp) String() string {
	if !t.Time.IsZero() {
		return FormatTime(t.Time)
	}
	return t.Raw
}

// FormatTime renders an instant in StorageLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(StorageLayout)
}

// ParseTime parses any accepted stored layout.
func ParseTime(s string) (time.Time, error) {
	return Timestamp{Raw: s}.Parse()
}

// =============================================================================
// CALENDAR - day boundaries in the configured zone
// =============================================================================

const dayLayout = "2006-01-02"

// Day returns the calendar day of t in loc as YYYY-MM-DD.
func Day(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return Day(a, loc) == Day(b, loc)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// AddDays moves t by n calendar days, keeping its wall-clock time in loc.
func AddDays(t time.Time, n int, loc *time.Location) time.Time {
	return t.In(loc).AddDate(0, 0, n)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: dose time %q must be HH:MM", ErrValidation, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: dose time %q has invalid hour", ErrValidation, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: dose time %q has invalid minute", ErrValidation, s)
	}
	return h*60 + m, nil
}

// MinuteOfDay returns t's wall-clock minute in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}
