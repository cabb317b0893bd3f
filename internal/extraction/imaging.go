package extraction

import (
	"regexp"
	"strings"
	"time"
)

// Defaults for imaging fields that could not be read.
const (
	NotSpecified           = "Not specified"
	NoFindingsDocumented   = "No specific findings documented"
	NoImpressionDocumented = "No impression documented"
)

const (
	imagingSectionLimit = 500
	imagingWindowLines  = 10
)

var imagingTrigger = regexp.MustCompile(`(?i)x[\s_-]?ray|ct[\s_-]?scan|\bmri\b|ultrasound|mammograph|radiolog|imaging|\bscan\b`)

type keywordRule struct {
	label string
	re    *regexp.Regexp
}

// bodyParts is scanned in order; the first hit wins.
var bodyParts = []keywordRule{
	{"chest", regexp.MustCompile(`(?i)\bchest\b`)},
	{"abdomen", regexp.MustCompile(`(?i)\babdom(?:en|inal)\b`)},
	{"head", regexp.MustCompile(`(?i)\bhead\b`)},
	{"spine", regexp.MustCompile(`(?i)\bspin(?:e|al)\b`)},
	{"pelvis", regexp.MustCompile(`(?i)\bpelvi(?:s|c)\b`)},
	{"knee", regexp.MustCompile(`(?i)\bknee\b`)},
	{"shoulder", regexp.MustCompile(`(?i)\bshoulder\b`)},
	{"hand", regexp.MustCompile(`(?i)\bhand\b`)},
	{"foot", regexp.MustCompile(`(?i)\bfoot\b`)},
	{"neck", regexp.MustCompile(`(?i)\bneck\b`)},
	{"heart", regexp.MustCompile(`(?i)\bheart\b`)},
	{"lung", regexp.MustCompile(`(?i)\blungs?\b`)},
	{"liver", regexp.MustCompile(`(?i)\bliver\b`)},
	{"kidney", regexp.MustCompile(`(?i)\bkidneys?\b`)},
}

// scanTypes is scanned in order; the first hit wins.
var scanTypes = []keywordRule{
	{"X-RAY", regexp.MustCompile(`(?i)x[\s_-]?ray|radiograph`)},
	{"CT", regexp.MustCompile(`(?i)\bct\b|computed\s+tomography`)},
	{"MRI", regexp.MustCompile(`(?i)\bmri\b|magnetic\s+resonance`)},
	{"ULTRASOUND", regexp.MustCompile(`(?i)ultrasound|\busg\b|sonograph`)},
	{"MAMMOGRAPHY", regexp.MustCompile(`(?i)mammograph`)},
	{"PET SCAN", regexp.MustCompile(`(?i)\bpet[\s-]?(?:ct|scan)\b`)},
	{"BONE SCAN", regexp.MustCompile(`(?i)\bbone\s+scan\b`)},
}

var (
	bodyPartLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?im)\b(?:body\s*part|region|area)\s*[:\-]\s*([^\n\t]+)`),
		regexp.MustCompile(`(?im)\bexamination\s+of\s+(?:the\s+)?([a-z][a-z ]{1,40}?)\s*(?:[:.,(]|$)`),
	}
	scanTypeLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?im)\b(?:scan\s*type|modality|technique)\s*[:\-]\s*([^\n\t]+)`),
	}
	findingsLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\bfindings?\s*[:\-]\s*(.+?)(?:\n\s*(?:impression|conclusion|opinion|recommendations?|advice)\s*[:\-]|\z)`),
	}
	impressionLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\b(?:impression|conclusion|opinion)\s*[:\-]\s*(.+?)(?:\n\s*\n|\n\s*(?:findings?|recommendations?|advice|note|radiologist|reported\s+by)\b|\z)`),
	}
	findingsKeyword   = regexp.MustCompile(`(?i)finding`)
	impressionKeyword = regexp.MustCompile(`(?i)impression|conclusion|opinion`)
)

// ImagingExtractor reads a single aggregate imaging report from a document.
type ImagingExtractor struct {
	now func() time.Time
}

// NewImagingExtractor builds an imaging extractor; nil now means time.Now.
func NewImagingExtractor(now func() time.Time) *ImagingExtractor {
	if now == nil {
		now = time.Now
	}
	return &ImagingExtractor{now: now}
}

// IsImaging reports whether text or filename mentions an imaging study.
func IsImaging(text, filename string) bool {
	return imagingTrigger.MatchString(text) || imagingTrigger.MatchString(normalizeFilename(filename))
}

// Extract returns one ImagingReport when the document mentions imaging and
// none otherwise. Multiple studies in one document are merged into that report.
func (x *ImagingExtractor) Extract(text, filename string) []ImagingReport {
	date, _ := documentDate(text, x.now)
	return x.extractWithDate(text, filename, date)
}

func (x *ImagingExtractor) extractWithDate(text, filename, date string) []ImagingReport {
	if !IsImaging(text, filename) {
		return []ImagingReport{}
	}
	haystack := text + "\n" + normalizeFilename(filename)

	report := ImagingReport{
		BodyPart:        NotSpecified,
		ScanType:        NotSpecified,
		Findings:        NoFindingsDocumented,
		Impression:      NoImpressionDocumented,
		ResultTimestamp: date,
	}
	if v := firstLabeled(bodyPartLabels, text); v != "" {
		report.BodyPart = titleCase(truncate(v, 100))
	} else if v := firstKeyword(bodyParts, haystack); v != "" {
		report.BodyPart = titleCase(v)
	}
	if v := firstLabeled(scanTypeLabels, text); v != "" {
		report.ScanType = strings.ToUpper(truncate(v, 100))
	} else if v := firstKeyword(scanTypes, haystack); v != "" {
		report.ScanType = v
	}
	if v := section(findingsLabels, findingsKeyword, text); v != "" {
		report.Findings = v
	}
	if v := section(impressionLabels, impressionKeyword, text); v != "" {
		report.Impression = v
	}
	return []ImagingReport{report}
}

func firstLabeled(rules []*regexp.Regexp, text string) string {
	for _, re := range rules {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := collapseSpaces(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstKeyword(rules []keywordRule, text string) string {
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r.label
		}
	}
	return ""
}

// section reads a labeled block, falling back to a fixed window of lines
// starting at the first line mentioning keyword.
func section(labels []*regexp.Regexp, keyword *regexp.Regexp, text string) string {
	if v := firstLabeled(labels, text); v != "" {
		return truncate(v, imagingSectionLimit)
	}
	lines := splitLines(text)
	for i, line := range lines {
		if !keyword.MatchString(line) {
			continue
		}
		end := i + imagingWindowLines
		if end > len(lines) {
			end = len(lines)
		}
		return truncate(collapseSpaces(strings.Join(lines[i:end], " ")), imagingSectionLimit)
	}
	return ""
}
