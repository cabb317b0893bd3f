package extraction

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// truncate caps s at limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

// titleCase upper-cases the first letter of every space-separated word and
// lower-cases the rest.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		for j, r := range runes {
			if unicode.IsLetter(r) {
				runes[j] = unicode.ToUpper(r)
				break
			}
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// normalizeFilename turns "chest_xray_report.pdf" into "chest xray report pdf"
// so word-boundary keyword tables apply to it.
func normalizeFilename(name string) string {
	return strings.NewReplacer("_", " ", ".", " ", "+", " ").Replace(name)
}

// splitLines splits on any newline convention.
func splitLines(text string) []string {
	return lineBreak.Split(text, -1)
}

var lineBreak = regexp.MustCompile(`\r?\n|\r`)
