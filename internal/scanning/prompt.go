package scanning

import (
	"fmt"
	"strings"
)

const extractionPrompt = `You are analyzing a bill, receipt or invoice document. Carefully read all text in the image and extract the following information:

1. **Provider**: The merchant, store, utility or service provider that issued the document. This is usually the largest text or in a header. Examples: "Walmart", "CVS Pharmacy", "City Water", "Vodafone".

2. **Date**: The transaction, purchase or invoice date. Convert it to ISO 8601 format (YYYY-MM-DD). Common formats on documents: MM/DD/YYYY, DD/MM/YYYY, DD.MM.YYYY or written dates.

3. **Amount**: The final total, grand total or amount due, usually labeled "TOTAL", "Amount Due" or "Grand Total". Extract only the numeric value (e.g., 42.75 for $42.75).

4. **Currency**: The ISO 4217 code of the amount (e.g., "USD", "EUR", "GBP").

5. **Confidence**: Your confidence in the extraction as a number between 0 and 1.

Return ONLY valid JSON in this exact format:
{
  "provider": "Provider Name",
  "date": "YYYY-MM-DD",
  "amount": 0.00,
  "currency": "USD",
  "confidence": 0.0
}

Important:
- The date must be in YYYY-MM-DD format
- The amount must be a number (not a string)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// buildPrompt appends the request's language and hints to the base prompt
func buildPrompt(req Request) string {
	if req.Language == "" && len(req.Hints) == 0 {
		return extractionPrompt
	}

	var b strings.Builder
	b.WriteString(extractionPrompt)
	b.WriteString("\n\nAdditional context:")
	if req.Language != "" {
		fmt.Fprintf(&b, "\n- The document is written in language %q", req.Language)
	}
	for _, h := range req.Hints {
		fmt.Fprintf(&b, "\n- %s", h)
	}
	return b.String()
}
