package extract

import (
	"regexp"
	"strings"
	"time"
)

// Words that look like client names in the extraction patterns but are not.
var commonWords = map[string]bool{
	"summarize": true, "meeting": true, "last": true, "my": true,
	"the": true, "a": true, "an": true, "for": true, "with": true,
	"on": true, "prepare": true, "brief": true,
}

var clientNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)my\s+last\s+([A-Za-z]{2,})\s+meeting`),
	regexp.MustCompile(`(?i)last\s+([A-Za-z]{2,})\s+meeting`),
	regexp.MustCompile(`(?i)summarize.*?meeting.*?with\s+([A-Za-z][A-Za-z0-9]+(?:\s+[A-Za-z][A-Za-z0-9]+){0,3})(?:\s|$|,|\.|on)`),
	regexp.MustCompile(`(?i)meeting.*?with\s+([A-Za-z][A-Za-z0-9]+(?:\s+[A-Za-z][A-Za-z0-9]+){0,3})(?:\s|$|,|\.|on)`),
	regexp.MustCompile(`(?i)with\s+([A-Za-z]{2,})(?:\s|$|,|\.|on)`),
	regexp.MustCompile(`(?i)([A-Za-z]{2,})\s+meeting`),
}

var fillerWordsRe = regexp.MustCompile(`(?i)\b(for|with|the|a|an|my|last|summarize|meeting|on)\b`)

// ClientName extracts a client name hint from the message. A name already
// supplied by upstream intent recognition wins; otherwise pattern matching
// against the message is tried. Returns "" when nothing plausible is found.
func ClientName(message, extracted string) string {
	if name := validateClientName(extracted); name != "" {
		return name
	}

	for _, pat := range clientNamePatterns {
		m := pat.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])

		// Short all-letter strings are treated as acronyms.
		if len(candidate) >= 2 && len(candidate) <= 6 && isAlpha(candidate) {
			candidate = strings.ToUpper(candidate)
		} else {
			candidate = fillerWordsRe.ReplaceAllString(candidate, "")
			candidate = titleCase(strings.TrimSpace(candidate))
		}
		if name := validateClientName(candidate); name != "" {
			return name
		}
	}
	return ""
}

func validateClientName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) < 2 || commonWords[strings.ToLower(name)] {
		return ""
	}
	return name
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Selection is the meeting reference parsed from the message plus any
// explicit UI selections the caller passed through.
type Selection struct {
	MeetingID       *int64
	MeetingNumber   *int
	CalendarEventID string
	TargetDate      *time.Time
	ClientName      string
}

var datePhraseRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\s+\d{1,2}(?:st|nd|rd|th)?\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\b`),
	regexp.MustCompile(`(?i)\b(?:the\s+)?\d{1,2}(?:st|nd|rd|th)\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`),
}

var (
	meetingIDRe       = regexp.MustCompile(`(?i)meeting\s+id\s+(\d+)`)
	calendarEventRe   = regexp.MustCompile(`(?i)calendar\s+event\s+([a-zA-Z0-9_\-]+)`)
	strictNumberRe    = regexp.MustCompile(`(?i)\b(?:meeting|number)\s+(\d+)`)
	lenientNumberRe   = regexp.MustCompile(`(?i)(?:summarize\s+)?(?:meeting\s+)?(?:number\s+)?(\d+)`)
	dateSuffixAfterRe = regexp.MustCompile(`(?i)^\s*(?:st|nd|rd|th|of|january|february|march|april|may|june|july|august|september|october|november|december)`)
)

// ParseSelection extracts the meeting reference from a message. Explicit
// selections (a meeting ID or calendar event ID chosen in the UI) short-
// circuit message parsing entirely.
func ParseSelection(message, extractedDate, extractedClient string, selectedMeetingID *int64, selectedEventID string, now time.Time) Selection {
	if selectedMeetingID != nil {
		return Selection{MeetingID: selectedMeetingID}
	}
	if selectedEventID != "" {
		return Selection{CalendarEventID: selectedEventID}
	}

	sel := Selection{}

	datePhrase := extractedDate
	if datePhrase == "" {
		for _, pat := range datePhraseRes {
			if m := pat.FindString(message); m != "" {
				datePhrase = m
				break
			}
		}
	}
	if datePhrase != "" {
		sel.TargetDate = ParseDate(datePhrase, now)
	}

	sel.ClientName = ClientName(message, extractedClient)

	sel.MeetingNumber = meetingNumber(message, datePhrase != "")

	if m := meetingIDRe.FindStringSubmatch(message); m != nil {
		id := int64(atoi(m[1]))
		sel.MeetingID = &id
	}
	if m := calendarEventRe.FindStringSubmatch(message); m != nil {
		sel.CalendarEventID = m[1]
	}
	return sel
}

// meetingNumber finds an "N" candidate-list selection. When the message
// also carries a date the match must be explicit ("meeting 2") so day
// numbers are not mistaken for selections.
func meetingNumber(message string, hasDate bool) *int {
	if hasDate {
		m := strictNumberRe.FindStringSubmatchIndex(message)
		if m == nil {
			return nil
		}
		after := message[m[3]:]
		if dateSuffixAfterRe.MatchString(after) {
			return nil
		}
		n := atoi(message[m[2]:m[3]])
		return &n
	}

	m := lenientNumberRe.FindStringSubmatchIndex(message)
	if m == nil {
		return nil
	}
	after := message[m[3]:]
	if dateSuffixAfterRe.MatchString(after) {
		return nil
	}
	n := atoi(message[m[2]:m[3]])
	return &n
}

// HasRecencyLanguage reports whether the message asks for the most
// recent meeting ("last", "latest", "most recent").
func HasRecencyLanguage(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range []string{"last", "latest", "most recent", "most-recent"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsCommonWord reports whether the word is filler rather than a client name.
func IsCommonWord(word string) bool {
	return commonWords[strings.ToLower(word)]
}
