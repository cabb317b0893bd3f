package aiextract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/medrec/medrec/internal/extraction"
)

type fakeModel struct {
	text  string
	err   error
	parts []genai.Part
	ctx   context.Context
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	f.ctx = ctx
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text(f.text)}}}},
	}, nil
}

func newTestClient(extractor, reader generator) *Client {
	return &Client{
		extractor: extractor,
		reader:    reader,
		timeout:   time.Second,
		now:       func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestExtract_ConformsModelOutput(t *testing.T) {
	model := &fakeModel{text: "```json\n" + `{
  "investigations": [
    {"investigation_name": " Hemoglobin ", "result": "13.5", "unit": "g/dL", "reference_range": "12.0 - 15.5", "flag": "normal", "result_timestamp": "2024-03-12"},
    {"investigation_name": "WBC", "result": "11200", "unit": "/cumm", "reference_range": "4000 - 11000", "flag": "H", "result_timestamp": "12/03/2024"},
    {"investigation_name": "", "result": "1", "flag": "Normal"}
  ],
  "imaging_radiology_reports": [{"body_part": "Chest", "scan_type": "X-RAY", "findings": "", "impression": "Normal study.", "result_timestamp": "2024-03-12"}],
  "other_clinical_data": "Patient Name: Asha Rao"
}` + "\n```"}

	res, err := newTestClient(model, nil).Extract(context.Background(), extraction.RawDocument{Text: "Hemoglobin 13.5", Filename: "cbc.pdf"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Investigations) != 2 {
		t.Fatalf("expected nameless entry dropped, got %+v", res.Investigations)
	}
	hb, wbc := res.Investigations[0], res.Investigations[1]
	if hb.InvestigationName != "Hemoglobin" || hb.Flag != extraction.FlagNormal {
		t.Errorf("unexpected first entry %+v", hb)
	}
	if wbc.Flag != extraction.FlagHigh || wbc.ResultTimestamp != "2024-07-01" {
		t.Errorf("expected High flag and defaulted date, got %+v", wbc)
	}
	r := res.ImagingRadiologyReports[0]
	if r.Findings != extraction.NoFindingsDocumented || r.Impression != "Normal study." {
		t.Errorf("unexpected imaging report %+v", r)
	}

	prompt, _ := model.parts[0].(genai.Text)
	if !strings.Contains(string(prompt), "cbc.pdf") || !strings.Contains(string(prompt), "Hemoglobin 13.5") {
		t.Errorf("prompt should carry filename and text: %q", prompt)
	}
	if _, ok := model.ctx.Deadline(); !ok {
		t.Error("expected the call to carry a deadline")
	}
}

func TestConform_LocalInvariants(t *testing.T) {
	in := extraction.ExtractionResult{
		Investigations: []extraction.InvestigationResult{
			{InvestigationName: "Platelet Count", Result: "1,50,000", Flag: "Normal", ResultTimestamp: "2024-03-12"},
			{InvestigationName: "platelet count", Result: "150000", Flag: "Normal", ResultTimestamp: "2024-03-12"},
			{InvestigationName: "HBsAg", Result: "Non Reactive", Flag: "Normal", ResultTimestamp: "2024-03-12"},
			{InvestigationName: "Creatinine", Result: "-0.8", Flag: "Low", ResultTimestamp: "2024-03-12"},
			{InvestigationName: "CBC", Result: "", Flag: "Pending", ResultTimestamp: "2024-05-03"},
			{InvestigationName: "cbc", Result: "Pending/Not Available", Flag: "Pending", ResultTimestamp: "2024-05-03"},
			{InvestigationName: "CBC", Result: "", Flag: "Pending", ResultTimestamp: "2024-05-04"},
		},
	}

	out := conform(in, "2024-07-01")
	if len(out.Investigations) != 3 {
		t.Fatalf("expected 3 investigations, got %+v", out.Investigations)
	}
	if got := out.Investigations[0]; got.InvestigationName != "Platelet Count" || got.Result != "150000" {
		t.Errorf("expected separators stripped and duplicate dropped, got %+v", got)
	}
	for _, inv := range out.Investigations[1:] {
		if inv.InvestigationName != "CBC" || inv.Result != extraction.PendingResult || inv.Flag != extraction.FlagPending {
			t.Errorf("unexpected pending entry %+v", inv)
		}
	}
	if out.Investigations[1].ResultTimestamp == out.Investigations[2].ResultTimestamp {
		t.Error("pending entries on different dates should both be kept")
	}
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"transport", &fakeModel{err: errors.New("quota exceeded")}},
		{"empty", &fakeModel{text: "  "}},
		{"not json", &fakeModel{text: "I could not read this document."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestClient(tt.model, nil).Extract(context.Background(), extraction.RawDocument{Text: "x"})
			if err == nil {
				t.Fatal("expected an error")
			}
			if res.Investigations == nil || res.ImagingRadiologyReports == nil {
				t.Error("failed calls should still return non-nil slices")
			}
		})
	}
}

func TestRecognizeText(t *testing.T) {
	reader := &fakeModel{text: "Hemoglobin  13.5  g/dL"}
	got, err := newTestClient(nil, reader).RecognizeText(context.Background(), []byte{1, 2, 3}, "image/png")
	if err != nil {
		t.Fatalf("RecognizeText: %v", err)
	}
	if got != "Hemoglobin  13.5  g/dL" {
		t.Errorf("unexpected transcription %q", got)
	}
	blob, ok := reader.parts[0].(genai.Blob)
	if !ok || blob.MIMEType != "image/png" || len(blob.Data) != 3 {
		t.Errorf("expected the image as the first part, got %#v", reader.parts[0])
	}
}

func TestResponseText_NoCandidates(t *testing.T) {
	if _, err := responseText(&genai.GenerateContentResponse{}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
	if _, err := responseText(nil); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse for nil, got %v", err)
	}
}
