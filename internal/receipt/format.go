package receipt

import (
	"fmt"
	"strings"
	"time"
)

// Format controls how amounts are rendered
type Format struct {
	DecimalSep   string
	ThousandsSep string
	// SymbolFirst puts the currency before the number ("USD 1,234.56")
	SymbolFirst bool
}

var (
	// FormatUS renders 1234.5 USD as "USD 1,234.50"
	FormatUS = Format{DecimalSep: ".", ThousandsSep: ",", SymbolFirst: true}
	// FormatEU renders 1234.5 EUR as "1.234,50 EUR"
	FormatEU = Format{DecimalSep: ",", ThousandsSep: "."}
)

// FormatAmount renders cents with two decimals, grouped thousands and the currency code
func FormatAmount(cents int64, currency string, f Format) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	units := fmt.Sprintf("%d", cents/100)
	var grouped strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			grouped.WriteString(f.ThousandsSep)
		}
		grouped.WriteRune(r)
	}

	number := fmt.Sprintf("%s%s%s%02d", sign, grouped.String(), f.DecimalSep, cents%100)
	if currency == "" {
		return number
	}
	if f.SymbolFirst {
		return currency + " " + number
	}
	return number + " " + currency
}

// FormatDate renders t with layout, defaulting to ISO 8601 dates
func FormatDate(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	if layout == "" {
		layout = "2006-01-02"
	}
	return t.Format(layout)
}
