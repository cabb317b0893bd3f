// Package extraction turns raw text recovered from lab reports, radiology
// reports and hospital bills into structured medical records. Every stage is
// a deterministic pattern heuristic; nothing here performs I/O.
package extraction

import (
	"errors"
	"strings"
	"time"
)

// ErrNilDocument is returned when the orchestrator is called without a document.
var ErrNilDocument = errors.New("extraction: document is required")

// DateLayout is the wire format of result_timestamp.
const DateLayout = "2006-01-02"

// Flag is the categorical interpretation of a lab value.
type Flag string

const (
	FlagNormal         Flag = "Normal"
	FlagHigh           Flag = "High"
	FlagLow            Flag = "Low"
	FlagBorderlineHigh Flag = "BorderlineHigh"
	FlagBorderlineLow  Flag = "BorderlineLow"
	FlagPending        Flag = "Pending"
)

// Valid reports whether f is one of the enumerated flags.
func (f Flag) Valid() bool {
	switch f {
	case FlagNormal, FlagHigh, FlagLow, FlagBorderlineHigh, FlagBorderlineLow, FlagPending:
		return true
	}
	return false
}

// ParseFlag maps free-form flag text ("H", "high", "Borderline High") onto
// the closed set. Unknown text is Normal.
func ParseFlag(s string) Flag {
	if f := Flag(strings.TrimSpace(s)); f.Valid() {
		return f
	}
	return normalizeFlag(s)
}

// DocumentType selects the extraction strategy.
type DocumentType string

const (
	DocumentBilling   DocumentType = "billing"
	DocumentLabReport DocumentType = "lab_report"
)

// Outcome classifies how much an extraction call could recover.
type Outcome string

const (
	OutcomeConfident         Outcome = "confident"
	OutcomeHeuristicFallback Outcome = "heuristic_fallback"
	OutcomeNoMatch           Outcome = "no_match"
)

// RawDocument is the input of one extraction call.
type RawDocument struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// InvestigationResult is a single lab test entry.
type InvestigationResult struct {
	InvestigationName string `json:"investigation_name"`
	Result            string `json:"result"`
	Unit              string `json:"unit"`
	ReferenceRange    string `json:"reference_range"`
	Flag              Flag   `json:"flag"`
	ResultTimestamp   string `json:"result_timestamp"`
	Note              string `json:"note,omitempty"`
}

// ImagingReport is the aggregate imaging study found in a document.
type ImagingReport struct {
	BodyPart        string `json:"body_part"`
	ScanType        string `json:"scan_type"`
	Findings        string `json:"findings"`
	Impression      string `json:"impression"`
	ResultTimestamp string `json:"result_timestamp"`
}

// ExtractionResult is the terminal output of the engine.
type ExtractionResult struct {
	Investigations          []InvestigationResult `json:"investigations"`
	ImagingRadiologyReports []ImagingReport       `json:"imaging_radiology_reports"`
	OtherClinicalData       string                `json:"other_clinical_data"`
}

// NewExtractionResult returns a result whose arrays encode as [] rather than null.
func NewExtractionResult() ExtractionResult {
	return ExtractionResult{
		Investigations:          []InvestigationResult{},
		ImagingRadiologyReports: []ImagingReport{},
	}
}

// Empty reports whether the result carries no usable data.
func (r ExtractionResult) Empty() bool {
	return len(r.Investigations) == 0 && len(r.ImagingRadiologyReports) == 0 && r.OtherClinicalData == ""
}

// Normalize replaces nil slices so the JSON shape stays stable.
func (r *ExtractionResult) Normalize() {
	if r.Investigations == nil {
		r.Investigations = []InvestigationResult{}
	}
	if r.ImagingRadiologyReports == nil {
		r.ImagingRadiologyReports = []ImagingReport{}
	}
}

// Options tunes the heuristics.
type Options struct {
	// YearPivot: two-digit billing years above the pivot map to 19xx, the rest to 20xx.
	YearPivot int
	// Now supplies the default result date when a document carries none.
	Now func() time.Time
}

// DefaultYearPivot matches the historical billing heuristic.
const DefaultYearPivot = 50

func (o Options) withDefaults() Options {
	if o.YearPivot <= 0 || o.YearPivot > 99 {
		o.YearPivot = DefaultYearPivot
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
