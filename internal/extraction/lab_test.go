package extraction

import (
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
}

func TestLabExtract_SingleValueLine(t *testing.T) {
	out := NewLabExtractor(fixedClock).Extract("Hemoglobin    13.5    H    g/dL    12.0 - 15.5")
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(out.Results), out.Results)
	}
	r := out.Results[0]
	if r.InvestigationName != "Hemoglobin" {
		t.Errorf("expected name Hemoglobin, got %q", r.InvestigationName)
	}
	if r.Result != "13.5" {
		t.Errorf("expected result 13.5, got %q", r.Result)
	}
	if r.Flag != FlagHigh {
		t.Errorf("expected flag High, got %q", r.Flag)
	}
	if r.Unit != "g/dL" {
		t.Errorf("expected unit g/dL, got %q", r.Unit)
	}
	if r.ReferenceRange != "12.0 - 15.5" {
		t.Errorf("expected range '12.0 - 15.5', got %q", r.ReferenceRange)
	}
	if r.ResultTimestamp != "2024-07-01" {
		t.Errorf("expected default date 2024-07-01, got %q", r.ResultTimestamp)
	}
	if out.Debug.DateSource != "default" {
		t.Errorf("expected default date source, got %q", out.Debug.DateSource)
	}
}

func TestLabExtract_MethodologyNoiseRejected(t *testing.T) {
	out := NewLabExtractor(fixedClock).Extract("Kinetic colorimetric assay based on Jaffe method    0.8    mg/dL")
	if len(out.Results) != 0 {
		t.Fatalf("expected no results, got %+v", out.Results)
	}
	if out.Debug.Skipped[SkipMethodology] != 1 {
		t.Errorf("expected one methodology skip, got %v", out.Debug.Skipped)
	}
}

const labTable = `CITY DIAGNOSTICS
Patient Name: Asha Rao        Date: 12/03/2024
Test            Result    Unit     Reference Range
Hemoglobin      13.5      g/dL     12.0 - 15.5
Total WBC Count  11,500  /cumm  4000 - 11000
Platelet Count  1,50,000  /cumm  1,50,000 - 4,50,000
Serum Creatinine  0.8  mg/dL  0.6 - 1.2
Hemoglobin      13.5      g/dL     12.0 - 15.5
Page 1 of 2`

func TestLabExtract_Table(t *testing.T) {
	out := NewLabExtractor(fixedClock).Extract(labTable)

	want := []struct {
		name, value, unit string
		flag              Flag
	}{
		{"Hemoglobin", "13.5", "g/dL", FlagNormal},
		{"Total Wbc Count", "11500", "/cumm", FlagHigh},
		{"Platelet Count", "150000", "/cumm", FlagNormal},
		{"Serum Creatinine", "0.8", "mg/dL", FlagNormal},
	}
	if len(out.Results) != len(want) {
		t.Fatalf("expected %d results, got %d: %+v", len(want), len(out.Results), out.Results)
	}
	for i, w := range want {
		r := out.Results[i]
		if r.InvestigationName != w.name || r.Result != w.value || r.Unit != w.unit || r.Flag != w.flag {
			t.Errorf("result %d: got %+v, want %+v", i, r, w)
		}
		if r.ResultTimestamp != "2024-03-12" {
			t.Errorf("result %d: expected document date 2024-03-12, got %q", i, r.ResultTimestamp)
		}
	}

	if out.Debug.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", out.Debug.Duplicates)
	}
	if out.Debug.Skipped[SkipHeader] != 1 {
		t.Errorf("expected the column header to be skipped, got %v", out.Debug.Skipped)
	}
	if out.Debug.Skipped[SkipMethodology] != 1 {
		t.Errorf("expected the page footer to be skipped, got %v", out.Debug.Skipped)
	}
	if out.Debug.Matched != 4 {
		t.Errorf("expected matched=4, got %d", out.Debug.Matched)
	}
}

func TestLabExtract_DedupAndFlagClosure(t *testing.T) {
	text := strings.Join([]string{
		"Glucose Fasting  126  mg/dL  70 - 110",
		"Glucose Fasting  126  mg/dL  70 - 110",
		"GLUCOSE FASTING  126  mg/dL  70 - 110",
		"HbA1c  6.1  %  Borderline High  4.0 - 5.6",
		"Vitamin B12  150  pg/mL  L  200 - 900",
		"Sodium  138  mmol/L  N  135 - 145",
	}, "\n")
	out := NewLabExtractor(fixedClock).Extract(text)

	seen := make(map[string]bool)
	for _, r := range out.Results {
		key := strings.ToLower(r.InvestigationName) + "_" + r.Result
		if seen[key] {
			t.Errorf("duplicate result %q", key)
		}
		seen[key] = true
		if !r.Flag.Valid() {
			t.Errorf("flag %q outside the closed set", r.Flag)
		}
	}
	if len(out.Results) != 4 {
		t.Fatalf("expected 4 results, got %d: %+v", len(out.Results), out.Results)
	}
	if out.Results[0].Flag != FlagHigh {
		t.Errorf("expected range-derived High for glucose, got %q", out.Results[0].Flag)
	}
	if out.Results[1].Flag != FlagBorderlineHigh {
		t.Errorf("expected BorderlineHigh, got %q", out.Results[1].Flag)
	}
	if out.Results[2].Flag != FlagLow {
		t.Errorf("expected Low, got %q", out.Results[2].Flag)
	}
	if out.Results[3].Flag != FlagNormal {
		t.Errorf("expected Normal, got %q", out.Results[3].Flag)
	}
}

func TestLabExtract_BacktracksPastInvalidName(t *testing.T) {
	out := NewLabExtractor(fixedClock).Extract("12  Vitamin D  28.5  ng/mL  30 - 100\nnext line")
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %+v", out.Results)
	}
	r := out.Results[0]
	if r.Result != "28.5" {
		t.Errorf("expected value 28.5, got %q", r.Result)
	}
	if !strings.Contains(r.InvestigationName, "Vitamin D") {
		t.Errorf("expected name to contain Vitamin D, got %q", r.InvestigationName)
	}
	if r.Flag != FlagLow {
		t.Errorf("expected Low, got %q", r.Flag)
	}
}

func TestLabExtract_FlattenedText(t *testing.T) {
	text := "Hemoglobin   13.5   g/dL   12.0 - 15.5   Platelet Count   4.2   lakhs/cumm   1.5 - 4.5"
	out := NewLabExtractor(fixedClock).Extract(text)
	if !out.Debug.Resplit {
		t.Error("expected the flattened line to be re-split")
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", out.Results)
	}
	if out.Results[1].InvestigationName != "Platelet Count" || out.Results[1].Unit != "lakhs/cumm" {
		t.Errorf("unexpected second result %+v", out.Results[1])
	}
}

func TestLabExtract_Empty(t *testing.T) {
	out := NewLabExtractor(fixedClock).Extract("")
	if out.Results == nil || len(out.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", out.Results)
	}
}

func TestSkipReason_LengthBoundary(t *testing.T) {
	if got := skipReason("ALT 9"); got != "" {
		t.Errorf("5-char line should be a candidate, got skip %q", got)
	}
	if got := skipReason("AL 9"); got != SkipTooShort {
		t.Errorf("4-char line should be too short, got %q", got)
	}
	if got := skipReason("  AL 9  "); got != SkipTooShort {
		t.Errorf("length is measured after trimming, got %q", got)
	}
}

func TestSkipReason(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"Test Name   Result   Unit", SkipHeader},
		{"Printed on 12/03/2024 10:15", SkipMethodology},
		{"12/03/2024", SkipMethodology},
		{"Hemoglobin is normal", SkipNoNumeric},
		{"value was 12 today", SkipNoTestName},
		{"hb (blood) 12", ""},
		{"Hemoglobin  13.5", ""},
	}
	for _, tt := range tests {
		if got := skipReason(tt.line); got != tt.want {
			t.Errorf("skipReason(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestCleanTestName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Kinetic colorimetric Creatinine", "Creatinine"},
		{"-- HEMOGLOBIN --", "Hemoglobin"},
		{"Glucose mg/dl 70-110", "Glucose"},
		{"serum   uric    acid", "Serum Uric Acid"},
		{"Calculated LDL Cholesterol", "Ldl Cholesterol"},
	}
	for _, tt := range tests {
		if got := cleanTestName(tt.raw); got != tt.want {
			t.Errorf("cleanTestName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestIsValidLabResult(t *testing.T) {
	tests := []struct {
		name, value string
		want        bool
	}{
		{"Hemoglobin", "13.5", true},
		{"Platelets", "1,50,000", true},
		{"Hb", "12", false},
		{"123", "12", false},
		{"Patient Id", "12", false},
		{"Sample Number", "12", false},
		{"Glucose", "12a", false},
	}
	for _, tt := range tests {
		if got := isValidLabResult(tt.name, tt.value); got != tt.want {
			t.Errorf("isValidLabResult(%q, %q) = %v, want %v", tt.name, tt.value, got, tt.want)
		}
	}
}

func TestEvaluateRange(t *testing.T) {
	tests := []struct {
		value, rng string
		want       Flag
	}{
		{"13.5", "12.0 - 15.5", FlagNormal},
		{"11", "12 - 15", FlagLow},
		{"16", "12 to 15", FlagHigh},
		{"250", "< 200", FlagHigh},
		{"150", "<200", FlagNormal},
		{"7", "up to 5", FlagHigh},
		{"30", "> 40", FlagLow},
		{"45", ">= 40", FlagNormal},
		{"10", "Negative", FlagNormal},
		{"10", "", FlagNormal},
	}
	for _, tt := range tests {
		if got := evaluateRange(tt.value, tt.rng); got != tt.want {
			t.Errorf("evaluateRange(%q, %q) = %q, want %q", tt.value, tt.rng, got, tt.want)
		}
	}
}

func TestNormalizeFlag(t *testing.T) {
	tests := map[string]Flag{
		"H":               FlagHigh,
		"l":               FlagLow,
		"N":               FlagNormal,
		"HIGH":            FlagHigh,
		"Borderline High": FlagBorderlineHigh,
		"borderlinelow":   FlagBorderlineLow,
	}
	for in, want := range tests {
		if got := normalizeFlag(in); got != want {
			t.Errorf("normalizeFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	tests := map[string]Flag{
		"Pending":        FlagPending,
		"BorderlineHigh": FlagBorderlineHigh,
		" high ":         FlagHigh,
		"critical":       FlagNormal,
		"":               FlagNormal,
	}
	for in, want := range tests {
		if got := ParseFlag(in); got != want {
			t.Errorf("ParseFlag(%q) = %q, want %q", in, got, want)
		}
	}
}
