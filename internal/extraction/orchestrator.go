package extraction

import (
	"fmt"
	"regexp"
	"strings"
)

// Analysis is an extraction result together with how it was produced.
type Analysis struct {
	Result  ExtractionResult  `json:"result"`
	Type    DocumentType      `json:"document_type"`
	Signals ClassifierSignals `json:"signals"`
	Lab     *LabDebug         `json:"lab_debug,omitempty"`
	Outcome Outcome           `json:"outcome"`
}

// Orchestrator classifies a document and dispatches it to the billing
// strategy or to the lab, imaging and notes extractors. It holds no mutable
// state and is safe for concurrent use.
type Orchestrator struct {
	opts    Options
	billing *BillingExtractor
	lab     *LabExtractor
	imaging *ImagingExtractor
	notes   *ClinicalNotesExtractor
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		opts:    opts,
		billing: NewBillingExtractor(opts.YearPivot),
		lab:     NewLabExtractor(opts.Now),
		imaging: NewImagingExtractor(opts.Now),
		notes:   NewClinicalNotesExtractor(),
	}
}

// ExtractStructuredData is the engine entry point. It never fails on
// content; the only error is a missing document.
func (o *Orchestrator) ExtractStructuredData(doc *RawDocument) (ExtractionResult, error) {
	a, err := o.Analyze(doc)
	if err != nil {
		return NewExtractionResult(), err
	}
	return a.Result, nil
}

// Analyze runs the full pipeline and reports the document type, lab parser
// counters and outcome alongside the result.
func (o *Orchestrator) Analyze(doc *RawDocument) (Analysis, error) {
	if doc == nil {
		return Analysis{Result: NewExtractionResult(), Outcome: OutcomeNoMatch}, ErrNilDocument
	}
	text := strings.ToValidUTF8(doc.Text, "\uFFFD")

	signals := Explain(text)
	a := Analysis{Result: NewExtractionResult(), Signals: signals, Type: DocumentLabReport}

	if signals.IsBilling() {
		a.Type = DocumentBilling
		a.Result.Investigations = o.billing.Extract(text)
		a.Result.OtherClinicalData = billingNotes(text, a.Result.Investigations)
	} else {
		date, source := documentDate(text, o.opts.Now)
		lab := o.lab.extractWithDate(text, date, source)
		a.Lab = &lab.Debug
		a.Result.Investigations = lab.Results
		a.Result.ImagingRadiologyReports = o.imaging.extractWithDate(text, doc.Filename, date)
		a.Result.OtherClinicalData = o.notes.Extract(text)
	}
	a.Result.Normalize()
	a.Outcome = OutcomeOf(a.Result)
	return a, nil
}

// OutcomeOf grades a result: any investigation is a confident match, imaging
// or notes alone are a heuristic match, nothing at all is no match.
func OutcomeOf(r ExtractionResult) Outcome {
	switch {
	case len(r.Investigations) > 0:
		return OutcomeConfident
	case r.Empty():
		return OutcomeNoMatch
	default:
		return OutcomeHeuristicFallback
	}
}

var numericContent = regexp.MustCompile(`\d+(?:\.\d+)?`)

// LooksNumeric reports whether text carries enough numbers that an empty
// investigation list points at a parser gap.
func LooksNumeric(text string) bool {
	return len(numericContent.FindAllStringIndex(text, 3)) >= 3
}

// ---------------------------------------------------------------------------
// Billing header notes
// ---------------------------------------------------------------------------

const billingValue = `\s*[:\-]\s*([^\n\t]*?\S)(?:\s{2,}|\t|[ \t]*$)`

var (
	hospitalLine   = regexp.MustCompile(`(?i)hospital|clinic|medical\s+cent(?:re|er)|nursing\s+home|healthcare`)
	billingHeaders = []labeledField{
		{"Bill Number", regexp.MustCompile(`(?im)\b(?:bill|invoice|receipt)\s*(?:no\.?|number|#)\s*[:\-]?\s*([A-Za-z0-9/\-]*\d[A-Za-z0-9/\-]*)`)},
		{"Patient", regexp.MustCompile(`(?im)\bpatient(?:'s)?(?:\s*name)?` + billingValue)},
		{"Admission Date", regexp.MustCompile(`(?im)\b(?:date\s+of\s+admission|admission\s+date|admitted\s+on|doa)\s*[:\-]\s*(\d{1,2}[./\-]\d{1,2}[./\-]\d{2,4})`)},
		{"Discharge Date", regexp.MustCompile(`(?im)\b(?:date\s+of\s+discharge|discharge\s+date|discharged\s+on|dod)\s*[:\-]\s*(\d{1,2}[./\-]\d{1,2}[./\-]\d{2,4})`)},
		{"Consultant", regexp.MustCompile(`(?im)\b(?:consultant|treating\s+doctor|attending\s+physician)` + billingValue)},
		{"Total Amount", regexp.MustCompile(`(?im)\b(?:grand\s+total|net\s+amount|total\s+amount)\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*(\d[\d,]*(?:\.\d{1,2})?)`)},
	}
	imagingOrder = regexp.MustCompile(`(?i)x[\s_-]?ray|\bct\b|\bmri\b|\busg\b|ultrasound|\bscan\b|\becho\b|doppler`)
)

// billingNotes summarises the bill header and the ordered investigations.
func billingNotes(text string, ordered []InvestigationResult) string {
	var lines []string
	for _, line := range splitLines(text) {
		if hospitalLine.MatchString(line) {
			lines = append(lines, "Hospital: "+truncate(collapseSpaces(line), 200))
			break
		}
	}
	for _, h := range billingHeaders {
		if m := h.re.FindStringSubmatch(text); m != nil {
			if v := collapseSpaces(m[1]); v != "" {
				lines = append(lines, h.label+": "+truncate(v, 200))
			}
		}
	}

	labs, imaging := 0, 0
	for _, r := range ordered {
		if imagingOrder.MatchString(r.InvestigationName) {
			imaging++
		} else {
			labs++
		}
	}
	summary := fmt.Sprintf("Billing summary: %d laboratory test(s) and %d imaging stud(ies) ordered.", labs, imaging)
	warning := "Warning: this is a billing document. Test results are not present; refer to the corresponding lab and imaging reports."

	if len(lines) == 0 {
		return summary + "\n\n" + warning
	}
	return strings.Join(lines, "\n") + "\n\n" + summary + "\n\n" + warning
}
