package receipt

import "time"

// Summary holds the dashboard metrics over a set of receipts
type Summary struct {
	ReceiptCount       int                `json:"receipt_count"`
	TotalSpending      float64            `json:"total_spending"`
	TotalTax           float64            `json:"total_tax"`
	AverageTransaction float64            `json:"average_transaction"`
	PassedValidation   int                `json:"passed_validation"`
	FailedValidation   int                `json:"failed_validation"`
	ByCategory         map[string]float64 `json:"by_category"`
	ByMonth            map[string]float64 `json:"by_month"`
}

// Summarize computes totals, averages and breakdowns for receipts.
// Receipts whose date does not parse are left out of ByMonth only.
func Summarize(receipts []*Receipt) Summary {
	summary := Summary{
		ReceiptCount: len(receipts),
		ByCategory:   make(map[string]float64),
		ByMonth:      make(map[string]float64),
	}

	for _, r := range receipts {
		amount := r.TotalAmount()
		summary.TotalSpending += amount
		summary.TotalTax += r.TaxAmount()
		summary.ByCategory[categoryName(r)] += amount

		if date, err := time.Parse("2006-01-02", r.Date.String()); err == nil {
			summary.ByMonth[date.Format("2006-01")] += amount
		}

		if r.ValidationPassed {
			summary.PassedValidation++
		} else {
			summary.FailedValidation++
		}
	}

	if summary.ReceiptCount > 0 {
		summary.AverageTransaction = summary.TotalSpending / float64(summary.ReceiptCount)
	}

	return summary
}
