// Package validation decides whether an extracted receipt is well formed,
// whether its tax is consistent with the expected rate, and whether its bill
// id is already on file.
package validation

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

const (
	// ExpectedTaxRate is the tax rate receipts are checked against
	ExpectedTaxRate = 0.08

	// Tolerance is the absolute allowed deviation from ExpectedTaxRate
	Tolerance = 0.05

	dateLayout = "2006-01-02"
)

// DuplicateLookup answers whether a bill id is already stored.
// Implementations must be safe for concurrent reads.
type DuplicateLookup interface {
	ReceiptExists(billID string) (bool, error)
}

// subtotalCandidate is one interpretation of the pre-tax amount.
type subtotalCandidate struct {
	name     string
	subtotal func(amount, tax float64) float64
}

// subtotalCandidates are tried in this order; the first within tolerance wins.
var subtotalCandidates = []subtotalCandidate{
	{
		name:     "amount minus tax",
		subtotal: func(amount, tax float64) float64 { return amount - tax },
	},
	{
		name:     "amount",
		subtotal: func(amount, tax float64) float64 { return amount },
	},
}

// Validator runs the receipt checks. It holds no state between calls.
type Validator struct {
	lookup DuplicateLookup
}

// NewValidator creates a Validator that checks duplicates against lookup.
// A nil lookup treats every bill id as new.
func NewValidator(lookup DuplicateLookup) *Validator {
	return &Validator{lookup: lookup}
}

// Validate runs every check against record and returns the report.
// A missing required field stops validation after the first check.
func (v *Validator) Validate(record Record, skipDuplicateCheck bool) Report {
	report := Report{Passed: true}

	missing := missingFields(record)
	if len(missing) > 0 {
		report.add(CheckResult{Name: CheckRequiredFields, Pass: false, Missing: missing})
		return report
	}
	report.add(CheckResult{Name: CheckRequiredFields, Pass: true, Details: "all required fields present"})

	report.add(checkDate(record.Date))

	amount := ParseOrDefault(record.Amount, 0.0)
	tax := ParseOrDefault(record.Tax, 0.0)

	report.add(checkAmount(amount))
	report.add(checkTaxRate(amount, tax))
	report.add(v.checkDuplicate(record.BillID, skipDuplicateCheck))

	return report
}

func missingFields(record Record) []string {
	var missing []string
	for _, f := range record.requiredFields() {
		if f.field.Missing() {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func checkDate(date Field) CheckResult {
	raw := date.String()
	if _, err := time.Parse(dateLayout, raw); err != nil {
		return CheckResult{Name: CheckDateFormat, Pass: false, Details: fmt.Sprintf("invalid date format: %s", raw)}
	}
	return CheckResult{Name: CheckDateFormat, Pass: true, Details: fmt.Sprintf("valid date: %s", raw)}
}

func checkAmount(amount float64) CheckResult {
	if amount > 0 {
		return CheckResult{Name: CheckTotalAmount, Pass: true, Details: fmt.Sprintf("valid amount: %.2f", amount)}
	}
	return CheckResult{Name: CheckTotalAmount, Pass: false, Details: "invalid amount value"}
}

func checkTaxRate(amount, tax float64) CheckResult {
	if tax == 0.0 {
		return CheckResult{Name: CheckTaxRate, Pass: true, Details: "no tax applied"}
	}

	for _, candidate := range subtotalCandidates {
		subtotal := candidate.subtotal(amount, tax)
		if subtotal <= 0 {
			continue
		}
		rate := tax / subtotal
		if math.Abs(rate-ExpectedTaxRate) <= Tolerance {
			return CheckResult{
				Name: CheckTaxRate,
				Pass: true,
				Details: fmt.Sprintf("tax rate ok (%.2f%%, subtotal %.2f from %s)",
					rate*100, subtotal, candidate.name),
			}
		}
	}

	return CheckResult{
		Name: CheckTaxRate,
		Pass: false,
		Details: fmt.Sprintf("tax mismatch: expected ~%.1f%% but got %.2f on amount %.2f",
			ExpectedTaxRate*100, tax, amount),
	}
}

func (v *Validator) checkDuplicate(billID Field, skip bool) CheckResult {
	if skip {
		return CheckResult{Name: CheckIsDuplicate, Pass: true, Details: "duplicate check skipped"}
	}

	if v.lookup == nil {
		return CheckResult{Name: CheckIsDuplicate, Pass: true, Details: "no duplicate found"}
	}

	exists, err := v.lookup.ReceiptExists(billID.String())
	if err != nil {
		slog.Warn("Duplicate lookup failed", "bill_id", billID.String(), "error", err)
		return CheckResult{Name: CheckIsDuplicate, Pass: false, Details: fmt.Sprintf("duplicate lookup failed: %v", err)}
	}
	if exists {
		return CheckResult{Name: CheckIsDuplicate, Pass: false, Details: "duplicate receipt found"}
	}
	return CheckResult{Name: CheckIsDuplicate, Pass: true, Details: "no duplicate found"}
}
