package extraction

import (
	"strings"
	"testing"
)

const billingBase = `IPD PATIENT BILL
Investigation
03.05.24  CBC  1  500  5000
Total  5000.00  500.00  5500.00`

func TestClassify_Billing(t *testing.T) {
	if got := Classify(billingBase); got != DocumentBilling {
		t.Fatalf("expected billing, got %q", got)
	}
	s := Explain(billingBase)
	if !s.BillingKeyword || !s.Investigation || s.LabHeader || !s.AmountTriplet {
		t.Errorf("unexpected signals %+v", s)
	}
}

func TestClassify_AnyMissingConditionMeansLabReport(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no billing keyword", strings.Replace(billingBase, "IPD PATIENT BILL", "DISCHARGE SUMMARY", 1)},
		{"no investigation word", strings.Replace(billingBase, "Investigation", "Services", 1)},
		{"lab table header", billingBase + "\nTest\tResult\tUnit"},
		{"lab table header with spaces", billingBase + "\nResult   Unit   Range"},
		{"no amount triplet", strings.Replace(billingBase, "5000.00  500.00  5500.00", "5500", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text); got != DocumentLabReport {
				t.Errorf("expected lab report, got %q (signals %+v)", got, Explain(tt.text))
			}
		})
	}
}

func TestClassify_ImpliesAllConditions(t *testing.T) {
	texts := []string{
		billingBase,
		labTable,
		"FINAL BILL Investigation 10.00 20.00 30.00",
		"Invoice\nInvestigation charges\nTest Result Unit\n10.00 20.00 30.00",
		"",
	}
	for _, text := range texts {
		s := Explain(text)
		if Classify(text) == DocumentBilling && !(s.BillingKeyword && s.Investigation && !s.LabHeader && s.AmountTriplet) {
			t.Errorf("billing classification without all conditions for %q: %+v", text, s)
		}
		if s.IsBilling() != (Classify(text) == DocumentBilling) {
			t.Errorf("Explain and Classify disagree for %q", text)
		}
	}
}
