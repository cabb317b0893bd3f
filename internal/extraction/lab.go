package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Minimum trimmed length of a candidate lab line.
const minLabLineLength = 5

// Skip reasons reported in LabDebug.Skipped.
const (
	SkipTooShort    = "too_short"
	SkipHeader      = "header"
	SkipMethodology = "methodology"
	SkipNoNumeric   = "no_numeric"
	SkipNoTestName  = "no_test_name"
)

// LabDebug describes what the lab parser did with a document.
type LabDebug struct {
	TotalLines         int            `json:"total_lines"`
	Resplit            bool           `json:"resplit_on_spaces"`
	CandidateLines     int            `json:"candidate_lines"`
	Skipped            map[string]int `json:"skipped"`
	TokenizeFailures   int            `json:"tokenize_failures"`
	ValidationFailures int            `json:"validation_failures"`
	Duplicates         int            `json:"duplicates"`
	Matched            int            `json:"matched"`
	DocumentDate       string         `json:"document_date"`
	DateSource         string         `json:"date_source"`
}

// LabExtraction is the output of LabExtractor.Extract.
type LabExtraction struct {
	Results []InvestigationResult `json:"results"`
	Debug   LabDebug              `json:"debug"`
}

// LabExtractor parses tabular lab-report text into investigation results.
type LabExtractor struct {
	now func() time.Time
}

// NewLabExtractor builds a lab extractor. now supplies the fallback result
// date; nil means time.Now.
func NewLabExtractor(now func() time.Time) *LabExtractor {
	if now == nil {
		now = time.Now
	}
	return &LabExtractor{now: now}
}

// Extract runs segment, filter, tokenize, clean, validate and dedup over text.
func (l *LabExtractor) Extract(text string) LabExtraction {
	date, source := documentDate(text, l.now)
	return l.extractWithDate(text, date, source)
}

func (l *LabExtractor) extractWithDate(text, date, source string) LabExtraction {
	lines, resplit := segmentLines(text)
	debug := LabDebug{
		TotalLines:   len(lines),
		Resplit:      resplit,
		Skipped:      map[string]int{},
		DocumentDate: date,
		DateSource:   source,
	}

	seen := make(map[string]bool)
	results := []InvestigationResult{}
	for _, line := range lines {
		if reason := skipReason(line); reason != "" {
			debug.Skipped[reason]++
			continue
		}
		debug.CandidateLines++

		parsed, status := tokenizeLabLine(line)
		switch status {
		case tokenizeNoValue:
			debug.TokenizeFailures++
			continue
		case tokenizeInvalid:
			debug.ValidationFailures++
			continue
		}

		key := strings.ToLower(parsed.name) + "_" + parsed.value
		if seen[key] {
			debug.Duplicates++
			continue
		}
		seen[key] = true

		results = append(results, InvestigationResult{
			InvestigationName: parsed.name,
			Result:            parsed.value,
			Unit:              parsed.unit,
			ReferenceRange:    parsed.referenceRange,
			Flag:              parsed.flag,
			ResultTimestamp:   date,
		})
	}
	debug.Matched = len(results)
	return LabExtraction{Results: results, Debug: debug}
}

// ---------------------------------------------------------------------------
// Stage 1: segmentation
// ---------------------------------------------------------------------------

var flattenedGap = regexp.MustCompile(` {3,}`)

// segmentLines splits text into lines. Text whose line breaks were lost is
// re-split on wide gaps and the pieces are regrouped into result rows.
func segmentLines(text string) ([]string, bool) {
	lines := splitLines(text)
	if len(lines) != 1 {
		return lines, false
	}
	pieces := flattenedGap.Split(strings.TrimSpace(lines[0]), -1)
	if len(pieces) < 2 {
		return lines, false
	}
	return reassembleRows(pieces), true
}

// reassembleRows starts a new row at every name-like piece that follows a
// row which already holds a value and its trailing unit or range.
func reassembleRows(pieces []string) []string {
	var (
		rows                       []string
		current                    []string
		hasValue, hasUnit, hasRest bool
	)
	flush := func() {
		if len(current) > 0 {
			rows = append(rows, strings.Join(current, "   "))
		}
		current = nil
		hasValue, hasUnit, hasRest = false, false, false
	}
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if hasValue && hasLetter(p) && !flagToken.MatchString(p) && !startsWithDigit(p) {
			if hasUnit || hasRest || !isUnitToken(p) {
				flush()
			}
		}
		current = append(current, p)
		switch {
		case !hasValue:
			hasValue = isValueToken(p)
		case flagToken.MatchString(p):
		case isUnitToken(p) && !hasUnit:
			hasUnit = true
		default:
			hasRest = true
		}
	}
	flush()
	return rows
}

// ---------------------------------------------------------------------------
// Stage 3: candidate filtering
// ---------------------------------------------------------------------------

var headerWords = regexp.MustCompile(`(?i)\b(tests?|investigations?|results?|values?|units?|ranges?|reference|normal|status|flags?)\b`)

// methodologyPhrases mark assay prose and report furniture rather than results.
var methodologyPhrases = []string{
	"kinetic", "colorimetric", "colourimetric", "spectrophotometry", "spectrophotometric",
	"immunoturbidimetry", "immunoturbidimetric", "turbidimetric", "nephelometry", "nephelometric",
	"chemiluminescence", "chemiluminescent", "electrochemiluminescence", "immunoassay", "elisa",
	"enzymatic", "photometry", "photometric", "hplc", "electrophoresis", "ion selective electrode",
	"flow cytometry", "cyanmethemoglobin", "jaffe", "glucose oxidase", "god-pod", "god pod",
	"hexokinase", "bromocresol", "biuret", "diazo", "uricase", "cholesterol oxidase", "peroxidase",
	"method", "methodology", "technique", "principle", "assay", "based on",
	"page", "printed on", "printed by", "end of report", "authorized by", "authorised by",
	"electronically signed", "this is a computer generated",
}

var dateOnlyFragment = regexp.MustCompile(`^[\s(]*\d{1,4}[/\-.]\d{1,2}[/\-.]\d{1,4}(?:\s+\d{1,2}:\d{2}(?::\d{2})?\s*(?:am|pm)?)?[\s)]*$`)

var (
	anyDigit       = regexp.MustCompile(`\d`)
	parenthesized  = regexp.MustCompile(`\([^)]+\)`)
	capitalizedRun = regexp.MustCompile(`[A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)*`)
)

// skipReason returns the first filter a line fails, or "" for a candidate.
func skipReason(line string) string {
	trimmed := strings.TrimSpace(line)
	if utf8.RuneCountInString(trimmed) < minLabLineLength {
		return SkipTooShort
	}
	if isHeaderLine(trimmed) {
		return SkipHeader
	}
	if shouldSkipMethodologyLine(trimmed) {
		return SkipMethodology
	}
	if !anyDigit.MatchString(trimmed) {
		return SkipNoNumeric
	}
	if !parenthesized.MatchString(trimmed) && !capitalizedRun.MatchString(trimmed) && !strings.ContainsAny(trimmed, "()") {
		return SkipNoTestName
	}
	return ""
}

// isHeaderLine reports whether at least two distinct column-header words occur.
func isHeaderLine(line string) bool {
	found := make(map[string]bool)
	for _, w := range headerWords.FindAllString(line, -1) {
		found[strings.TrimSuffix(strings.ToLower(w), "s")] = true
		if len(found) >= 2 {
			return true
		}
	}
	return false
}

func shouldSkipMethodologyLine(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range methodologyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return dateOnlyFragment.MatchString(lower)
}

// ---------------------------------------------------------------------------
// Stage 4: tokenization
// ---------------------------------------------------------------------------

var (
	columnGap  = regexp.MustCompile(`\s{2,}|\t`)
	valueRe    = regexp.MustCompile(`^(?:\d+\.?\d*|\d{1,3}(?:,\d{2,3})+(?:\.\d+)?)$`)
	flagToken  = regexp.MustCompile(`(?i)^(?:h|l|n|normal|high|low|borderline\s*high|borderline\s*low)$`)
	unitChars  = regexp.MustCompile(`^[A-Za-z0-9/%^.µμ]+$`)
	cleanValue = regexp.MustCompile(`^[0-9.,]+$`)
)

type tokenizeStatus int

const (
	tokenizeOK tokenizeStatus = iota
	tokenizeNoValue
	tokenizeInvalid
)

type labLine struct {
	name           string
	value          string
	unit           string
	referenceRange string
	flag           Flag
}

func isValueToken(tok string) bool {
	return valueRe.MatchString(tok)
}

func startsWithDigit(tok string) bool {
	return tok != "" && tok[0] >= '0' && tok[0] <= '9'
}

func isUnitToken(tok string) bool {
	if utf8.RuneCountInString(tok) > 15 || startsWithDigit(tok) {
		return false
	}
	if strings.Contains(tok, " - ") || strings.ContainsAny(tok, "<>") {
		return false
	}
	return unitChars.MatchString(tok)
}

// tokenizeLabLine splits a candidate on column gaps and reads name, value,
// flag, unit and reference range. When the tokens before a numeric token do
// not form a valid test name, the next numeric token is tried.
func tokenizeLabLine(line string) (labLine, tokenizeStatus) {
	var tokens []string
	for _, t := range columnGap.Split(strings.TrimSpace(line), -1) {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) < 2 {
		return labLine{}, tokenizeNoValue
	}

	sawValue := false
	for i, tok := range tokens {
		if !isValueToken(tok) {
			continue
		}
		sawValue = true
		name := cleanTestName(strings.Join(tokens[:i], " "))
		value := strings.ReplaceAll(tok, ",", "")
		if !isValidLabResult(name, value) {
			continue
		}
		parsed := labLine{name: name, value: value}
		rest := append([]string(nil), tokens[i+1:]...)

		flagged := false
		for j, t := range rest {
			if flagToken.MatchString(t) {
				parsed.flag = normalizeFlag(t)
				flagged = true
				rest = append(rest[:j], rest[j+1:]...)
				break
			}
		}
		for j, t := range rest {
			if isUnitToken(t) {
				parsed.unit = t
				rest = append(rest[:j], rest[j+1:]...)
				break
			}
		}
		parsed.referenceRange = strings.Join(rest, " ")
		if !flagged {
			parsed.flag = evaluateRange(value, parsed.referenceRange)
		}
		return parsed, tokenizeOK
	}
	if sawValue {
		return labLine{}, tokenizeInvalid
	}
	return labLine{}, tokenizeNoValue
}

var flagAliases = map[string]Flag{
	"h":              FlagHigh,
	"l":              FlagLow,
	"n":              FlagNormal,
	"high":           FlagHigh,
	"low":            FlagLow,
	"normal":         FlagNormal,
	"borderlinehigh": FlagBorderlineHigh,
	"borderlinelow":  FlagBorderlineLow,
}

// normalizeFlag maps a flag token onto the closed Flag set.
func normalizeFlag(tok string) Flag {
	key := strings.ToLower(strings.Join(strings.Fields(tok), ""))
	if f, ok := flagAliases[key]; ok {
		return f
	}
	return FlagNormal
}

var (
	boundedRange = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)`)
	upperOnly    = regexp.MustCompile(`(?i)^\s*(?:<=?|≤|up\s*to|upto|less\s+than|below)\s*(\d+(?:\.\d+)?)`)
	lowerOnly    = regexp.MustCompile(`(?i)^\s*(?:>=?|≥|more\s+than|greater\s+than|above)\s*(\d+(?:\.\d+)?)`)
)

// evaluateRange compares value with a printed reference range. Ranges it
// cannot read leave the value Normal.
func evaluateRange(value, referenceRange string) Flag {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || referenceRange == "" {
		return FlagNormal
	}
	if m := boundedRange.FindStringSubmatch(referenceRange); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		if lo <= hi {
			switch {
			case v < lo:
				return FlagLow
			case v > hi:
				return FlagHigh
			}
		}
		return FlagNormal
	}
	if m := upperOnly.FindStringSubmatch(referenceRange); m != nil {
		hi, _ := strconv.ParseFloat(m[1], 64)
		if v > hi {
			return FlagHigh
		}
		return FlagNormal
	}
	if m := lowerOnly.FindStringSubmatch(referenceRange); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		if v < lo {
			return FlagLow
		}
	}
	return FlagNormal
}

// ---------------------------------------------------------------------------
// Stage 5: name cleaning and validation
// ---------------------------------------------------------------------------

var methodologyPrefix = regexp.MustCompile(`^(?:kinetic|colou?rimetric|enzymatic|spectrophotometr(?:y|ic)|immunoturbidimetr(?:y|ic)|turbidimetric|nephelometr(?:y|ic)|chemiluminescence|e?clia|elisa|hplc|photometr(?:y|ic)|calculated|derived|automated|electrical\s+impedance|impedance|flow\s+cytometry|microscopy|ion\s+selective\s+electrode|(?:in)?direct\s+ise|ise)\b[\s,:\-]*`)

var (
	edgeDashes     = regexp.MustCompile(`^[\s\-–—]+|[\s\-–—]+$`)
	leakedUnitTail = regexp.MustCompile(`\s*(?:mg/dl|g/dl|mmol/l|iu/l)\s*[\d.]+\s*-\s*[\d.]+\s*$`)
	nonTestWords   = regexp.MustCompile(`\b(?:patient|date|report|laboratory|page|ref|sample|collected|registered|reported|unable|extract|text|from|pdf|error|failed|corrupted)\b`)
)

// cleanTestName normalises a raw name column into title case.
func cleanTestName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	for {
		stripped := methodologyPrefix.ReplaceAllString(name, "")
		if stripped == name {
			break
		}
		name = stripped
	}
	name = edgeDashes.ReplaceAllString(name, "")
	name = leakedUnitTail.ReplaceAllString(name, "")
	return titleCase(collapseSpaces(name))
}

// NormalizeLabValue strips thousands separators from a result and reports
// whether it is a non-negative decimal.
func NormalizeLabValue(result string) (string, bool) {
	value := strings.ReplaceAll(strings.TrimSpace(result), ",", "")
	if !cleanValue.MatchString(value) {
		return "", false
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 {
		return "", false
	}
	return value, true
}

// isValidLabResult guards the InvestigationResult invariants.
func isValidLabResult(name, value string) bool {
	if utf8.RuneCountInString(name) < 3 || !hasLetter(name) {
		return false
	}
	if nonTestWords.MatchString(strings.ToLower(name)) {
		return false
	}
	value = strings.ReplaceAll(value, ",", "")
	if !cleanValue.MatchString(value) {
		return false
	}
	v, err := strconv.ParseFloat(value, 64)
	return err == nil && v >= 0
}
