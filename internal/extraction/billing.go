package extraction

import (
	"fmt"
	"regexp"
	"strings"
)

// PendingResult is the result text of an ordered-but-not-resulted investigation.
const PendingResult = "Pending/Not Available"

// minPrimaryBillingItems is the count below which the line-by-line rescan runs.
const minPrimaryBillingItems = 5

// billingMoney matches a printed rate or amount, with or without
// thousands separators (5,000.00 or 1,50,000.00).
const billingMoney = `\d{1,3}(?:,\d{2,3})+(?:\.\d+)?|\d+(?:\.\d+)?`

var (
	billingPrimarySpan = regexp.MustCompile(`(?is)investigations?(.*?)(?:\n\s*(?:IPD\s+Registration|Pharmacy|Room\s+Charges|Radiologist|Grand\s+Total|Total|Net\s+Amount)\b|\z)`)
	billingPageSpan    = regexp.MustCompile(`(?is)Page\s*\d+.*?Investigations?(.*?)(?:Page\s*\d+|\n\s*(?:IPD\s+Registration|Pharmacy|Room\s+Charges|Radiologist|Grand\s+Total|Total|Net\s+Amount)\b|\z)`)
	billingLineItem    = regexp.MustCompile(`(?m)(\d{2})\.(\d{2})\.(\d{2})[ \t]+([A-Za-z0-9][A-Za-z0-9()/.\- ]*?)[ \t]+(\d+)[ \t]+(` + billingMoney + `)[ \t]+(` + billingMoney + `)(?:[ \t\r]|$)`)
	billingLooseLine   = regexp.MustCompile(`^\s*(\d{1,2})[./\-](\d{1,2})[./\-](\d{4}|\d{2})\s+([A-Za-z][A-Za-z0-9()/.,&\- ]*?)((?:\s+\d[\d.,]*)*)\s*$`)
	billingHeaderToken = regexp.MustCompile(`(?i)^(?:page|total|amount|rate|qty|date|sr\.?|no\.?)$`)
	numericOnly        = regexp.MustCompile(`^[\d\s.,]+$`)
	numberToken        = regexp.MustCompile(billingMoney)
)

// BillingExtractor reads hospital-bill line items as pending investigations.
type BillingExtractor struct {
	yearPivot int
}

// NewBillingExtractor builds a billing extractor with the given two-digit
// year pivot.
func NewBillingExtractor(yearPivot int) *BillingExtractor {
	return &BillingExtractor{yearPivot: Options{YearPivot: yearPivot}.withDefaults().YearPivot}
}

type billingItem struct {
	date   string
	name   string
	qty    string
	rate   string
	amount string
}

// Extract returns one pending InvestigationResult per distinct (name, date)
// line item found in the investigation sections of a bill.
func (b *BillingExtractor) Extract(text string) []InvestigationResult {
	span := investigationSpans(text)

	seen := make(map[string]bool)
	results := []InvestigationResult{}
	add := func(it billingItem) {
		key := strings.ToLower(it.name) + "_" + it.date
		if seen[key] {
			return
		}
		seen[key] = true
		results = append(results, it.toResult())
	}

	for _, m := range billingLineItem.FindAllStringSubmatch(span, -1) {
		date, ok := b.billingDate(m[1], m[2], m[3])
		if !ok {
			continue
		}
		name := cleanBillingName(m[4])
		if !validBillingName(name) {
			continue
		}
		add(billingItem{date: date, name: name, qty: m[5], rate: m[6], amount: m[7]})
	}

	if len(results) >= minPrimaryBillingItems {
		return results
	}

	scan := span
	if strings.TrimSpace(scan) == "" {
		scan = text
	}
	for _, line := range splitLines(scan) {
		m := billingLooseLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		date, ok := b.billingDate(m[1], m[2], m[3])
		if !ok {
			continue
		}
		name := cleanBillingName(m[4])
		if !validBillingName(name) {
			continue
		}
		it := billingItem{date: date, name: name}
		nums := numberToken.FindAllString(m[5], -1)
		if len(nums) >= 3 {
			it.qty, it.rate, it.amount = nums[len(nums)-3], nums[len(nums)-2], nums[len(nums)-1]
		} else if len(nums) > 0 {
			it.amount = nums[len(nums)-1]
		}
		add(it)
	}
	return results
}

// investigationSpans joins the primary investigation section with every
// per-page continuation.
func investigationSpans(text string) string {
	var parts []string
	if m := billingPrimarySpan.FindStringSubmatch(text); m != nil {
		parts = append(parts, m[1])
	}
	for _, m := range billingPageSpan.FindAllStringSubmatch(text, -1) {
		parts = append(parts, m[1])
	}
	return strings.Join(parts, "\n")
}

func (b *BillingExtractor) billingDate(day, month, year string) (string, bool) {
	t, ok := buildDate(expandBillingYear(year, b.yearPivot), month, day)
	if !ok {
		return "", false
	}
	return t.Format(DateLayout), true
}

func cleanBillingName(s string) string {
	return strings.Trim(collapseSpaces(s), " -.")
}

func validBillingName(name string) bool {
	if len([]rune(name)) < 2 {
		return false
	}
	if numericOnly.MatchString(name) || !hasLetter(name) {
		return false
	}
	return !billingHeaderToken.MatchString(name)
}

func (it billingItem) toResult() InvestigationResult {
	var parts []string
	if it.qty != "" {
		parts = append(parts, "Qty: "+it.qty)
	}
	if it.rate != "" {
		parts = append(parts, "Rate: "+it.rate)
	}
	if it.amount != "" {
		parts = append(parts, "Amount: "+it.amount)
	}
	note := fmt.Sprintf("Ordered on %s", it.date)
	if len(parts) > 0 {
		note += " (" + strings.Join(parts, ", ") + ")"
	}
	note += ". Result not available in billing document."

	return InvestigationResult{
		InvestigationName: it.name,
		Result:            PendingResult,
		Flag:              FlagPending,
		ResultTimestamp:   it.date,
		Note:              note,
	}
}
