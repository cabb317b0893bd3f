package extraction

import (
	"strings"
	"testing"
)

func TestBillingExtract_SingleItem(t *testing.T) {
	results := NewBillingExtractor(DefaultYearPivot).Extract(billingBase)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	r := results[0]
	if r.InvestigationName != "CBC" {
		t.Errorf("expected CBC, got %q", r.InvestigationName)
	}
	if r.Result != PendingResult {
		t.Errorf("expected pending result, got %q", r.Result)
	}
	if r.Flag != FlagPending {
		t.Errorf("expected Pending flag, got %q", r.Flag)
	}
	if r.ResultTimestamp != "2024-05-03" {
		t.Errorf("expected 2024-05-03, got %q", r.ResultTimestamp)
	}
	if !strings.Contains(r.Note, "500") || !strings.Contains(r.Note, "5000") {
		t.Errorf("expected note to carry rate and amount, got %q", r.Note)
	}
}

const billingMultiPage = `FINAL BILL
Page 1
Investigation
01.02.24  CBC  1  300  300
01.02.24  LFT  1  800  800
02.02.24  KFT  1  700  700
02.02.24  X-RAY CHEST PA  1  450  450
03.02.24  USG ABDOMEN  1  1200  1200
01.02.24  CBC  1  300  300
Pharmacy
01.02.24  PARACETAMOL  10  2  20
Page 2
Investigation
04.02.24  ESR  1  150  150
Page 3
Grand Total  3620.00  0.00  3620.00`

func TestBillingExtract_SectionsAndPages(t *testing.T) {
	results := NewBillingExtractor(DefaultYearPivot).Extract(billingMultiPage)

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.InvestigationName)
	}
	want := []string{"CBC", "LFT", "KFT", "X-RAY CHEST PA", "USG ABDOMEN", "ESR"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for _, r := range results {
		if r.InvestigationName == "PARACETAMOL" {
			t.Error("pharmacy line leaked into investigations")
		}
	}
}

func TestBillingExtract_LooseFallback(t *testing.T) {
	text := "IPD PATIENT BILL\nInvestigation\n5/6/2024 Thyroid Profile 1 650.00 650.00\n12-06-2024 Lipid Profile 900.00\nNet Amount 1550.00"
	results := NewBillingExtractor(DefaultYearPivot).Extract(text)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if results[0].InvestigationName != "Thyroid Profile" || results[0].ResultTimestamp != "2024-06-05" {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if !strings.Contains(results[0].Note, "Qty: 1, Rate: 650.00, Amount: 650.00") {
		t.Errorf("unexpected note %q", results[0].Note)
	}
	if results[1].InvestigationName != "Lipid Profile" || !strings.Contains(results[1].Note, "Amount: 900.00") {
		t.Errorf("unexpected second result %+v", results[1])
	}
}

func TestBillingExtract_ThousandsSeparators(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"line item", "FINAL BILL\nInvestigation\n03.05.24  CBC  1  500.00  5,000.00\n04.05.24  LFT  1  1,200.00  1,200.00\nTotal  6,200.00"},
		{"loose line", "FINAL BILL\nInvestigation\n3/5/2024 CBC 1 500.00 5,000.00\n4/5/2024 LFT 1 1,200.00 1,200.00\nTotal 6,200.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := NewBillingExtractor(DefaultYearPivot).Extract(tt.text)
			if len(results) != 2 {
				t.Fatalf("expected 2 results, got %+v", results)
			}
			if !strings.Contains(results[0].Note, "(Qty: 1, Rate: 500.00, Amount: 5,000.00)") {
				t.Errorf("unexpected CBC note %q", results[0].Note)
			}
			if !strings.Contains(results[1].Note, "(Qty: 1, Rate: 1,200.00, Amount: 1,200.00)") {
				t.Errorf("unexpected LFT note %q", results[1].Note)
			}
		})
	}
}

func TestBillingExtract_ShortRowDoesNotSwallowNext(t *testing.T) {
	text := `FINAL BILL
Investigation
03.05.24  CBC  1  500.00
04.05.24  LFT  1  800.00  800.00
04.05.24  KFT  1  700.00  700.00
05.05.24  TSH  1  400.00  400.00
05.05.24  ESR  1  150.00  150.00
06.05.24  CRP  1  600.00  600.00
Net Amount  3,150.00`

	results := NewBillingExtractor(DefaultYearPivot).Extract(text)
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.InvestigationName)
		if strings.Contains(r.Note, "Amount: 04.05") {
			t.Errorf("row absorbed the next row's date: %q", r.Note)
		}
	}
	want := []string{"LFT", "KFT", "TSH", "ESR", "CRP"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, names)
	}
	if !strings.Contains(results[0].Note, "Ordered on 2024-05-04 (Qty: 1, Rate: 800.00, Amount: 800.00)") {
		t.Errorf("unexpected LFT note %q", results[0].Note)
	}
}

func TestBillingExtract_YearPivot(t *testing.T) {
	text := "Investigation\n15.06.75  ECG  1  200  200"

	if got := NewBillingExtractor(DefaultYearPivot).Extract(text); len(got) != 1 || got[0].ResultTimestamp != "1975-06-15" {
		t.Errorf("default pivot: got %+v", got)
	}
	if got := NewBillingExtractor(80).Extract(text); len(got) != 1 || got[0].ResultTimestamp != "2075-06-15" {
		t.Errorf("pivot 80: got %+v", got)
	}
}

func TestBillingExtract_NoSection(t *testing.T) {
	results := NewBillingExtractor(DefaultYearPivot).Extract("Room Charges 3 days 4500.00")
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", results)
	}
}

func TestValidBillingName(t *testing.T) {
	tests := map[string]bool{
		"CBC":     true,
		"X":       false,
		"1234":    false,
		"12.50":   false,
		"Total":   false,
		"qty":     false,
		"Sr.":     false,
		"No":      false,
		"Lipid":   true,
		"Page 2a": true,
	}
	for name, want := range tests {
		if got := validBillingName(name); got != want {
			t.Errorf("validBillingName(%q) = %v, want %v", name, got, want)
		}
	}
}
