package mail

import (
	"errors"
	"fmt"
	nmail "net/mail"
	"time"
)

var ErrUnsupportedDate = errors.New("unsupported date format")

// ParseDateX parses Date header value.
// permissive also accepts some forms seen in the wild.
func ParseDateX(date string, permissive bool) (t time.Time, err error) {
	// try using stdlib defaults first
	t, err = nmail.ParseDate(date)
	if err == nil {
		return
	}

	if permissive {
		fallbacks := [...]string{
			"02 Jan 2006 15:04:05",
			"2006-01-02 15:04:05 -0700",
			time.RFC3339,
		}
		for _, l := range fallbacks {
			t, err = time.Parse(l, date)
			if err == nil {
				return
			}
		}
	}

	return time.Time{}, fmt.Errorf("%q: %w", date, ErrUnsupportedDate)
}

// FormatDate renders t as RFC 5322 date in UTC.
func FormatDate(t time.Time) string {
	t = t.UTC()
	W := t.Weekday()
	Y, M, D := t.Date()
	h, m, s := t.Clock()
	return fmt.Sprintf(
		"%s, %02d %s %04d %02d:%02d:%02d +0000",
		W.String()[:3], D, M.String()[:3], Y, h, m, s)
}
