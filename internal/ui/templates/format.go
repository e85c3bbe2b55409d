package templates

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatCurrency renders an amount as $1,234.56.
func FormatCurrency(d decimal.Decimal) string {
	p := message.NewPrinter(language.AmericanEnglish)
	return p.Sprintf("$%.2f", d.Round(2).InexactFloat64())
}

// FormatCount renders an integer with thousands separators.
func FormatCount(n int) string {
	p := message.NewPrinter(language.AmericanEnglish)
	return p.Sprintf("%d", n)
}

// dateValue formats a date for an <input type="date">.
func dateValue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func contains(values []string, v string) bool {
	return slices.Contains(values, v)
}
