// Package daykey models calendar days and the (user, day) identity used to
// address daily nutrition documents.
package daykey

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical ISO calendar date encoding.
const Layout = "2006-01-02"

// Date is a calendar date in its canonical YYYY-MM-DD form. The empty Date
// means "no date".
type Date string

// FromTime returns the wall-clock date of t in t's own location.
func FromTime(t time.Time) Date {
	return Date(t.Format(Layout))
}

// Parse validates s and returns it as a Date.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return FromTime(t), nil
}

func (d Date) String() string {
	return string(d)
}

func (d Date) IsZero() bool {
	return d == ""
}

// Midnight returns local midnight of d in loc.
func (d Date) Midnight(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, string(d), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", string(d), err)
	}
	return t, nil
}

// AddDays returns the date n calendar days after d.
func (d Date) AddDays(n int) Date {
	t, err := time.Parse(Layout, string(d))
	if err != nil {
		return d
	}
	return FromTime(t.AddDate(0, 0, n))
}

// DaysBetween returns the number of calendar days from a to b. Both are
// interpreted as UTC dates so daylight saving shifts never produce fractions.
func DaysBetween(a, b Date) (int, error) {
	ta, err := time.Parse(Layout, string(a))
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", string(a), err)
	}
	tb, err := time.Parse(Layout, string(b))
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", string(b), err)
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// Key identifies one user's ledger entry for one calendar day.
type Key struct {
	UserID string
	Date   Date
}

func NewKey(userID string, date Date) Key {
	return Key{UserID: userID, Date: date}
}

// String is the document id: "<userId>_<YYYY-MM-DD>".
func (k Key) String() string {
	return k.UserID + "_" + string(k.Date)
}

// ParseKey splits on the last underscore, so user ids may contain "_".
func ParseKey(s string) (Key, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 || i == len(s)-1 {
		return Key{}, fmt.Errorf("invalid day key %q", s)
	}
	date, err := Parse(s[i+1:])
	if err != nil {
		return Key{}, err
	}
	return Key{UserID: s[:i], Date: date}, nil
}
