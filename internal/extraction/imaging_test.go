package extraction

import (
	"strings"
	"testing"
)

func TestImagingExtract_FilenameDrivesDetection(t *testing.T) {
	text := "Findings: mild cardiomegaly\nImpression: Cardiomegaly, correlate clinically."
	reports := NewImagingExtractor(fixedClock).Extract(text, "chest_xray_report.pdf")
	if len(reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(reports))
	}
	r := reports[0]
	if r.ScanType != "X-RAY" {
		t.Errorf("expected X-RAY, got %q", r.ScanType)
	}
	if r.BodyPart != "Chest" {
		t.Errorf("expected Chest, got %q", r.BodyPart)
	}
	if !strings.Contains(r.Findings, "mild cardiomegaly") {
		t.Errorf("expected findings to contain 'mild cardiomegaly', got %q", r.Findings)
	}
	if strings.Contains(r.Findings, "Impression") {
		t.Errorf("findings ran into the impression section: %q", r.Findings)
	}
	if r.Impression != "Cardiomegaly, correlate clinically." {
		t.Errorf("unexpected impression %q", r.Impression)
	}
	if r.ResultTimestamp != "2024-07-01" {
		t.Errorf("expected default date, got %q", r.ResultTimestamp)
	}
}

func TestImagingExtract_LabeledFields(t *testing.T) {
	text := `MRI REPORT
Region: Left Knee
Modality: MRI 1.5T
Date: 12/03/2024

Findings:
Partial tear of the anterior cruciate ligament.
Mild joint effusion.

Conclusion: ACL partial tear.`

	reports := NewImagingExtractor(fixedClock).Extract(text, "scan.pdf")
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	r := reports[0]
	if r.BodyPart != "Left Knee" {
		t.Errorf("expected Left Knee, got %q", r.BodyPart)
	}
	if r.ScanType != "MRI 1.5T" {
		t.Errorf("expected MRI 1.5T, got %q", r.ScanType)
	}
	if r.Findings != "Partial tear of the anterior cruciate ligament. Mild joint effusion." {
		t.Errorf("unexpected findings %q", r.Findings)
	}
	if r.Impression != "ACL partial tear." {
		t.Errorf("unexpected impression %q", r.Impression)
	}
	if r.ResultTimestamp != "2024-03-12" {
		t.Errorf("expected 2024-03-12, got %q", r.ResultTimestamp)
	}
}

func TestImagingExtract_Defaults(t *testing.T) {
	reports := NewImagingExtractor(fixedClock).Extract("Radiology department", "")
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	r := reports[0]
	if r.BodyPart != NotSpecified || r.ScanType != NotSpecified {
		t.Errorf("expected unspecified body part and scan type, got %+v", r)
	}
	if r.Findings != NoFindingsDocumented || r.Impression != NoImpressionDocumented {
		t.Errorf("expected default findings and impression, got %+v", r)
	}
}

func TestImagingExtract_WindowFallback(t *testing.T) {
	lines := []string{"ULTRASOUND ABDOMEN", "Observations"}
	lines = append(lines, "The findings are listed below")
	for i := 0; i < 12; i++ {
		lines = append(lines, "line")
	}
	reports := NewImagingExtractor(fixedClock).Extract(strings.Join(lines, "\n"), "")
	r := reports[0]
	if r.ScanType != "ULTRASOUND" || r.BodyPart != "Abdomen" {
		t.Errorf("unexpected scan/body part %+v", r)
	}
	want := "The findings are listed below" + strings.Repeat(" line", 9)
	if r.Findings != want {
		t.Errorf("expected 10-line window %q, got %q", want, r.Findings)
	}
}

func TestImagingExtract_FindingsCapped(t *testing.T) {
	text := "CT SCAN\nFindings: " + strings.Repeat("a", 800)
	r := NewImagingExtractor(fixedClock).Extract(text, "")[0]
	if len([]rune(r.Findings)) != imagingSectionLimit {
		t.Errorf("expected findings capped at %d, got %d", imagingSectionLimit, len([]rune(r.Findings)))
	}
	if r.ScanType != "CT" {
		t.Errorf("expected CT, got %q", r.ScanType)
	}
}

func TestImagingExtract_NotTriggered(t *testing.T) {
	reports := NewImagingExtractor(fixedClock).Extract("Hemoglobin  13.5  g/dL", "cbc.pdf")
	if reports == nil || len(reports) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", reports)
	}
}

func TestIsImaging(t *testing.T) {
	tests := []struct {
		text, filename string
		want           bool
	}{
		{"X-Ray chest PA view", "", true},
		{"", "knee_mri.pdf", true},
		{"USG whole abdomen", "", false},
		{"Ultrasound whole abdomen", "", true},
		{"mammography screening", "", true},
		{"CBC report", "cbc.pdf", false},
	}
	for _, tt := range tests {
		if got := IsImaging(tt.text, tt.filename); got != tt.want {
			t.Errorf("IsImaging(%q, %q) = %v, want %v", tt.text, tt.filename, got, tt.want)
		}
	}
}
