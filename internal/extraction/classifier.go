package extraction

import "regexp"

var billingKeywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)IPD\s+PATIENT\s+BILL`),
	regexp.MustCompile(`(?i)FINAL\s+BILL`),
	regexp.MustCompile(`(?i)\bInvoice\b`),
	regexp.MustCompile(`(?i)\bReceipt\b`),
	regexp.MustCompile(`(?i)\bPayment\b`),
	regexp.MustCompile(`(?i)\bAmount\b`),
	regexp.MustCompile(`(?i)\bRate\b`),
	regexp.MustCompile(`(?i)\bQty\b`),
	regexp.MustCompile(`(?i)Total\s+Amount`),
	regexp.MustCompile(`(?i)Net\s+Amount`),
}

var (
	investigationWord = regexp.MustCompile(`(?i)investigation`)
	labTableHeaders   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bResult[\t ]+Unit[\t ]+Range\b`),
		regexp.MustCompile(`(?i)\bTest[\t ]+Result[\t ]+Unit\b`),
	}
	billingAmountTriplet = regexp.MustCompile(`\d+\.\d{2}\s+\d+\.\d{2}\s+\d+\.\d{2}`)
)

// ClassifierSignals records each condition of the billing conjunction.
type ClassifierSignals struct {
	BillingKeyword bool `json:"billing_keyword"`
	Investigation  bool `json:"investigation"`
	LabHeader      bool `json:"lab_header"`
	AmountTriplet  bool `json:"amount_triplet"`
}

// IsBilling is true only when every billing condition holds.
func (s ClassifierSignals) IsBilling() bool {
	return s.BillingKeyword && s.Investigation && !s.LabHeader && s.AmountTriplet
}

// Explain evaluates the four billing conditions independently.
func Explain(text string) ClassifierSignals {
	var s ClassifierSignals
	for _, re := range billingKeywordPatterns {
		if re.MatchString(text) {
			s.BillingKeyword = true
			break
		}
	}
	s.Investigation = investigationWord.MatchString(text)
	for _, re := range labTableHeaders {
		if re.MatchString(text) {
			s.LabHeader = true
			break
		}
	}
	s.AmountTriplet = billingAmountTriplet.MatchString(text)
	return s
}

// Classify routes a document to the billing or lab-report strategy. Any
// missing billing signal means LabReport.
func Classify(text string) DocumentType {
	if Explain(text).IsBilling() {
		return DocumentBilling
	}
	return DocumentLabReport
}
