package extraction

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	notesSectionLimit  = 500
	notesBlockLimit    = 300
	notesMethodLimit   = 200
	notesMaxMethods    = 5
	notesDedupPrefix   = 50
	fallbackMinLength  = 50
	fallbackParagraphs = 3
	fallbackLimit      = 1000
)

// singleLineValue captures the rest of a field up to a column gap or line end.
const singleLineValue = `\s*[:\-]\s*([^\n\t]*?\S)(?:\s{2,}|\t|[ \t]*$)`

// multiLineValue captures a block up to a blank line or the next "Label:" line.
const multiLineValue = `\s*[:\-]\s*(.+?)(?:\n[ \t]*\n|\n[ \t]*[A-Za-z][A-Za-z /&]{1,40}:|\z)`

type labeledField struct {
	label string
	re    *regexp.Regexp
}

func singleLineField(label, pattern string) labeledField {
	return labeledField{label: label, re: regexp.MustCompile(`(?im)\b(?:` + pattern + `)` + singleLineValue)}
}

func multiLineField(label, pattern string) labeledField {
	return labeledField{label: label, re: regexp.MustCompile(`(?is)\b(?:` + pattern + `)` + multiLineValue)}
}

var demographicFields = []labeledField{
	singleLineField("Patient Name", `patient\s*name|name\s+of\s+(?:the\s+)?patient`),
	singleLineField("Date of Birth", `date\s+of\s+birth|d\.?o\.?b\.?`),
	singleLineField("Age/Gender", `age\s*/\s*(?:gender|sex)|age\s*&\s*sex`),
	singleLineField("Referring Physician", `referring\s+(?:physician|doctor)|referred\s+by|ref\.?\s*by|consultant`),
}

var clinicalSections = []labeledField{
	multiLineField("Clinical Notes", `clinical\s+notes?`),
	multiLineField("Interpretation", `interpretation`),
	multiLineField("Recommendations", `recommendations?|advice`),
	multiLineField("Comments", `comments?`),
	multiLineField("Remarks", `remarks?`),
	multiLineField("Diagnosis", `(?:provisional\s+|final\s+)?diagnosis`),
	multiLineField("Medical History", `(?:medical|past|clinical)\s+history`),
	multiLineField("Clinical Indication", `clinical\s+indications?`),
}

var (
	noteBlock     = regexp.MustCompile(`(?is)\b(note|important|warning|caution)\s*:\s*(.+?)(?:\n[ \t]*\n|\n[ \t]*[A-Za-z][A-Za-z /&]{1,40}:|\z)`)
	methodLine    = regexp.MustCompile(`(?im)^[ \t]*(?:method|methodology|technique|technology)\s*:\s*([^\n]+)`)
	paragraphGap  = regexp.MustCompile(`\n[ \t]*\n`)
	medicalTopics = regexp.MustCompile(`(?i)\b(?:patient|diagnos\w*|treatment|symptoms?|history|medications?|clinical|disease|condition|therapy|prescribed|blood|pressure|examination|infection|pain|fever|chronic|acute|doctor|hospital)\b`)
)

type noteItem struct {
	start, end int
	label      string
	value      string
}

// ClinicalNotesExtractor gathers demographics and free-text clinical sections
// into one bundle.
type ClinicalNotesExtractor struct{}

// NewClinicalNotesExtractor returns a clinical notes extractor.
func NewClinicalNotesExtractor() *ClinicalNotesExtractor {
	return &ClinicalNotesExtractor{}
}

// Extract returns labeled blocks in the order they appear in text, or a
// paragraph fallback when no labeled field is present. The result may be "".
func (c *ClinicalNotesExtractor) Extract(text string) string {
	items := labeledItems(text)
	if len(items) == 0 {
		return paragraphFallback(text)
	}
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		blocks = append(blocks, it.label+": "+it.value)
	}
	return strings.Join(blocks, "\n\n")
}

func labeledItems(text string) []noteItem {
	var items []noteItem
	covered := func(pos int) bool {
		for _, it := range items {
			if pos >= it.start && pos < it.end {
				return true
			}
		}
		return false
	}

	for _, f := range demographicFields {
		if loc := f.re.FindStringSubmatchIndex(text); loc != nil {
			items = append(items, noteItem{
				start: loc[0], end: loc[3], label: f.label,
				value: truncate(collapseSpaces(text[loc[2]:loc[3]]), notesSectionLimit),
			})
		}
	}
	for _, f := range clinicalSections {
		loc := f.re.FindStringSubmatchIndex(text)
		if loc == nil || covered(loc[0]) {
			continue
		}
		if v := truncate(collapseSpaces(text[loc[2]:loc[3]]), notesSectionLimit); v != "" {
			items = append(items, noteItem{start: loc[0], end: loc[3], label: f.label, value: v})
		}
	}

	seenBlocks := make(map[string]bool)
	for _, loc := range noteBlock.FindAllStringSubmatchIndex(text, -1) {
		if covered(loc[0]) {
			continue
		}
		v := truncate(collapseSpaces(text[loc[4]:loc[5]]), notesBlockLimit)
		key := strings.ToLower(v)
		if utf8.RuneCountInString(key) > notesDedupPrefix {
			key = string([]rune(key)[:notesDedupPrefix])
		}
		if v == "" || seenBlocks[key] {
			continue
		}
		seenBlocks[key] = true
		items = append(items, noteItem{start: loc[0], end: loc[5], label: titleCase(text[loc[2]:loc[3]]), value: v})
	}

	methods := 0
	for _, loc := range methodLine.FindAllStringSubmatchIndex(text, -1) {
		if methods == notesMaxMethods {
			break
		}
		if covered(loc[0]) {
			continue
		}
		if v := truncate(collapseSpaces(text[loc[2]:loc[3]]), notesMethodLimit); v != "" {
			items = append(items, noteItem{start: loc[0], end: loc[3], label: "Method", value: v})
			methods++
		}
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].start < items[j].start })
	return items
}

// paragraphFallback keeps the first few long paragraphs that read as clinical.
func paragraphFallback(text string) string {
	var picked []string
	for _, p := range paragraphGap.Split(text, -1) {
		p = collapseSpaces(p)
		if utf8.RuneCountInString(p) <= fallbackMinLength || !medicalTopics.MatchString(p) {
			continue
		}
		picked = append(picked, p)
		if len(picked) == fallbackParagraphs {
			break
		}
	}
	return truncate(strings.Join(picked, "\n\n"), fallbackLimit)
}
