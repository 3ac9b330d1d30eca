// Package extract pulls structured hints out of free-form user messages:
// target dates, client names, candidate-list selections.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var writtenOrdinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"eleventh": 11, "twelfth": 12, "thirteenth": 13, "fourteenth": 14,
	"fifteenth": 15, "sixteenth": 16, "seventeenth": 17, "eighteenth": 18,
	"nineteenth": 19, "twentieth": 20,
	"twenty-first": 21, "twenty first": 21,
	"twenty-second": 22, "twenty second": 22,
	"twenty-third": 23, "twenty third": 23,
	"twenty-fourth": 24, "twenty fourth": 24,
	"twenty-fifth": 25, "twenty fifth": 25,
	"twenty-sixth": 26, "twenty sixth": 26,
	"twenty-seventh": 27, "twenty seventh": 27,
	"twenty-eighth": 28, "twenty eighth": 28,
	"twenty-ninth": 29, "twenty ninth": 29,
	"thirtieth": 30,
	"thirty-first": 31, "thirty first": 31,
}

var writtenOrdinalKeys = func() []string {
	keys := make([]string, 0, len(writtenOrdinals))
	for k := range writtenOrdinals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

var (
	isoDateRe     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	monthDayRe     = regexp.MustCompile(`(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\s+(\d{1,2})(?:st|nd|rd|th)?`)
	dayMonthRe     = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)`)
	bareOrdinalRe  = regexp.MustCompile(`(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)`)
	monthNameRe    = regexp.MustCompile(`(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)`)
	slashDateRe    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
)

// ParseDate parses a user-supplied date phrase into a UTC date.
// Accepted forms include ISO dates, slash dates, month-name dates with
// optional ordinal suffixes ("November 21st", "21st of Nov"), bare
// ordinals ("the 21st"), written ordinals ("twenty-first of November"),
// and relative words (yesterday, today, tomorrow). Day-only and
// year-less forms resolve to the most recent occurrence not after now.
// Returns nil if the phrase cannot be parsed.
func ParseDate(phrase string, now time.Time) *time.Time {
	s := strings.ToLower(strings.TrimSpace(phrase))
	if s == "" {
		return nil
	}
	now = now.UTC()

	// Relative words first: they are unambiguous.
	switch {
	case strings.Contains(s, "yesterday"):
		return datePtr(now.AddDate(0, 0, -1))
	case strings.Contains(s, "today"):
		return datePtr(now)
	case strings.Contains(s, "tomorrow"):
		return datePtr(now.AddDate(0, 0, 1))
	}

	if m := isoDateRe.FindString(s); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return &t
		}
	}

	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		return parseSlashDate(m, now)
	}

	if m := monthDayRe.FindStringSubmatch(s); m != nil {
		return resolveMonthDay(monthsByName[m[1]], atoi(m[2]), now)
	}
	if m := dayMonthRe.FindStringSubmatch(s); m != nil {
		return resolveMonthDay(monthsByName[m[2]], atoi(m[1]), now)
	}

	// Written ordinals, optionally with a month name. Longest phrase
	// first so "twenty-first" is not shadowed by "first".
	for _, written := range writtenOrdinalKeys {
		if !strings.Contains(s, written) {
			continue
		}
		day := writtenOrdinals[written]
		if m := monthNameRe.FindStringSubmatch(s); m != nil {
			return resolveMonthDay(monthsByName[m[1]], day, now)
		}
		return resolveDayOfMonth(day, now)
	}

	if m := bareOrdinalRe.FindStringSubmatch(s); m != nil {
		return resolveDayOfMonth(atoi(m[1]), now)
	}

	return nil
}

func parseSlashDate(m []string, now time.Time) *time.Time {
	month, day := atoi(m[1]), atoi(m[2])
	if m[3] != "" {
		year := atoi(m[3])
		if year < 100 {
			if year <= 50 {
				year += 2000
			} else {
				year += 1900
			}
		}
		return mkDate(year, time.Month(month), day)
	}
	return resolveMonthDay(time.Month(month), day, now)
}

// resolveMonthDay picks the year: current, unless that lands in the
// future, in which case the previous year.
func resolveMonthDay(month time.Month, day int, now time.Time) *time.Time {
	t := mkDate(now.Year(), month, day)
	if t == nil {
		return nil
	}
	if t.After(now) {
		return mkDate(now.Year()-1, month, day)
	}
	return t
}

// resolveDayOfMonth picks the month: current, unless the day is still
// ahead, in which case the previous month.
func resolveDayOfMonth(day int, now time.Time) *time.Time {
	t := mkDate(now.Year(), now.Month(), day)
	if t == nil {
		return nil
	}
	if t.After(now) {
		prev := now.AddDate(0, -1, 0)
		return mkDate(prev.Year(), prev.Month(), day)
	}
	return t
}

// mkDate builds a UTC midnight date, rejecting day overflow
// (time.Date would silently normalize Feb 30 into March).
func mkDate(year int, month time.Month, day int) *time.Time {
	if day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return nil
	}
	return &t
}

func datePtr(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func atoi(s string) int {
	var n int
	_, _ = fmt.Sscanf(s, "%d", &n)
	return n
}
