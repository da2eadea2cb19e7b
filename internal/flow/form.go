package flow

import (
	"errors"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultFormMinutes = DefaultSessionMinutes
	maxFormMinutes     = 12 * 60
)

// Form validation errors. Each is shown to the user as is.
var (
	ErrIncompleteForm  = errors.New("seems like the submitted data is incomplete")
	ErrInvalidFormat   = errors.New("seems like the submitted data has an invalid format")
	ErrInvalidDate     = errors.New("seems like the specified date is invalid")
	ErrInvalidTime     = errors.New("seems like the specified time is invalid")
	ErrNonexistentTime = errors.New("seems like the specified time is ambiguous or non-existent")
	ErrAmbiguousTime   = ErrNonexistentTime
)

// IsFormError reports whether err is a validation error of ParseForm.
func IsFormError(err error) bool {
	for _, target := range []error{ErrIncompleteForm, ErrInvalidFormat, ErrInvalidDate, ErrInvalidTime, ErrNonexistentTime} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ParseForm turns the schedule-session form into a Request. The date and
// time fields are wall-clock values in loc.
func ParseForm(form url.Values, loc *time.Location) (Request, error) {
	fields := [5]string{}
	for i, key := range []string{"year", "month", "day", "hour", "minute"} {
		if !form.Has(key) {
			return Request{}, ErrIncompleteForm
		}
		fields[i] = form.Get(key)
	}

	var numbers [5]int
	for i, raw := range fields {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Request{}, ErrInvalidFormat
		}
		numbers[i] = n
	}

	start, err := LocalTime(numbers[0], numbers[1], numbers[2], numbers[3], numbers[4], loc)
	if err != nil {
		return Request{}, err
	}

	minutes := defaultFormMinutes
	if raw := form.Get("duration"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 16); err == nil {
			minutes = min(int(n), maxFormMinutes)
		}
	}

	return Request{
		Start:         start,
		Duration:      time.Duration(minutes) * time.Minute,
		OpenEvent:     form.Get("open_game") == "yes",
		TransferRSVPs: form.Get("transfer_rsvps") == "yes",
	}, nil
}

// LocalTime resolves a wall-clock time in loc. Times skipped or repeated
// by a daylight saving transition are rejected.
func LocalTime(year, month, day, hour, minute int, loc *time.Location) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, ErrInvalidDate
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || date.Month() != time.Month(month) || date.Day() != day {
		return time.Time{}, ErrInvalidDate
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, ErrInvalidTime
	}

	wall := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	seen := make(map[int]struct{}, 2)
	var matches []time.Time
	for _, probe := range []time.Time{wall.Add(-12 * time.Hour), wall, wall.Add(12 * time.Hour)} {
		_, offset := probe.In(loc).Zone()
		if _, ok := seen[offset]; ok {
			continue
		}
		seen[offset] = struct{}{}

		candidate := wall.Add(-time.Duration(offset) * time.Second).In(loc)
		if sameWallClock(candidate, wall) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		return time.Time{}, ErrNonexistentTime
	case 1:
		return matches[0], nil
	default:
		return time.Time{}, ErrAmbiguousTime
	}
}

func sameWallClock(t, wall time.Time) bool {
	return t.Year() == wall.Year() && t.Month() == wall.Month() && t.Day() == wall.Day() &&
		t.Hour() == wall.Hour() && t.Minute() == wall.Minute()
}

// ProposeStart suggests the start of the next session: one calendar week
// after latest in loc, or tomorrow at the same local time if that is
// already past.
func ProposeStart(latest, now time.Time, loc *time.Location) time.Time {
	local := latest.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+7, local.Hour(), local.Minute(), 0, 0, loc)
	if next.Before(now) {
		today := now.In(loc)
		next = time.Date(today.Year(), today.Month(), today.Day()+1, local.Hour(), local.Minute(), 0, 0, loc)
	}
	return next
}
