package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateRule is one entry in the ordered document-date cascade.
type dateRule struct {
	name  string
	re    *regexp.Regexp
	parse func(m []string) (time.Time, bool)
}

var monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var dateRules = []dateRule{
	{
		name: "dd/mm/yyyy",
		re:   regexp.MustCompile(`\b(\d{1,2})([/\-.])(\d{1,2})([/\-.])(\d{4}|\d{2})\b`),
		parse: func(m []string) (time.Time, bool) {
			if m[2] != m[4] {
				return time.Time{}, false
			}
			return buildDate(expandLabYear(m[5]), m[3], m[1])
		},
	},
	{
		name: "yyyy/mm/dd",
		re:   regexp.MustCompile(`\b(\d{4})([/\-.])(\d{1,2})([/\-.])(\d{1,2})\b`),
		parse: func(m []string) (time.Time, bool) {
			if m[2] != m[4] {
				return time.Time{}, false
			}
			return buildDate(m[1], m[3], m[5])
		},
	},
	{
		name: "dd month yyyy",
		re:   regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?[\s\-]+` + monthPattern + `[a-z]*[\s\-,]+(\d{4})\b`),
		parse: func(m []string) (time.Time, bool) {
			return buildDate(m[3], monthNumber(m[2]), m[1])
		},
	},
	{
		name: "date label",
		re:   regexp.MustCompile(`(?i)\bdate\s*:\s*` + monthPattern + `[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})`),
		parse: func(m []string) (time.Time, bool) {
			return buildDate(m[3], monthNumber(m[1]), m[2])
		},
	},
	{
		name: "collected label",
		re:   regexp.MustCompile(`(?i)\bcollected(?:\s+on)?\s*:\s*` + monthPattern + `[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})`),
		parse: func(m []string) (time.Time, bool) {
			return buildDate(m[3], monthNumber(m[1]), m[2])
		},
	},
}

// extractDocumentDate returns the first date the cascade can read from text
// and the name of the rule that produced it. ok is false when nothing matched.
func extractDocumentDate(text string) (date time.Time, rule string, ok bool) {
	for _, r := range dateRules {
		for _, m := range r.re.FindAllStringSubmatch(text, -1) {
			if t, valid := r.parse(m); valid {
				return t, r.name, true
			}
		}
	}
	return time.Time{}, "", false
}

// documentDate formats the document date, falling back to now.
func documentDate(text string, now func() time.Time) (string, string) {
	if t, rule, ok := extractDocumentDate(text); ok {
		return t.Format(DateLayout), rule
	}
	return now().Format(DateLayout), "default"
}

// expandLabYear prefixes "20" to two-digit years found in lab reports.
func expandLabYear(y string) string {
	if len(y) == 2 {
		return "20" + y
	}
	return y
}

// expandBillingYear applies the pivot heuristic to two-digit billing years.
// It is an approximation: "> pivot" means 19xx, anything else 20xx.
func expandBillingYear(y string, pivot int) string {
	if len(y) != 2 {
		return y
	}
	n, err := strconv.Atoi(y)
	if err != nil {
		return y
	}
	if n > pivot {
		return strconv.Itoa(1900 + n)
	}
	return strconv.Itoa(2000 + n)
}

func buildDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if y < 1900 || y > 2999 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31/02 into March; reject those.
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

var monthNumbers = map[string]string{
	"jan": "1", "feb": "2", "mar": "3", "apr": "4", "may": "5", "jun": "6",
	"jul": "7", "aug": "8", "sep": "9", "oct": "10", "nov": "11", "dec": "12",
}

func monthNumber(name string) string {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return ""
	}
	return monthNumbers[name[:3]]
}
