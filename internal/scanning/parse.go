package scanning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when a provider ignores the ISO instruction
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// extractionPayload mirrors the JSON the prompt asks for; types are loose on purpose
type extractionPayload struct {
	Provider   *string  `json:"provider"`
	Amount     any      `json:"amount"`
	Date       *string  `json:"date"`
	Currency   *string  `json:"currency"`
	Confidence *float64 `json:"confidence"`
}

// parseExtraction pulls the JSON object out of a model reply and maps it to an Extraction
func parseExtraction(text string) (Extraction, error) {
	doc, err := jsonObject(text)
	if err != nil {
		return Extraction{}, err
	}
	if err := validateExtraction(doc); err != nil {
		return Extraction{}, err
	}

	var p extractionPayload
	if err := json.Unmarshal(doc, &p); err != nil {
		return Extraction{}, fmt.Errorf("unmarshaling json: %w", err)
	}

	var ex Extraction
	if p.Provider != nil {
		if name := strings.TrimSpace(*p.Provider); name != "" {
			ex.Provider = &name
		}
	}
	if amount, ok := parseAmount(p.Amount); ok {
		ex.Amount = &amount
	}
	if p.Date != nil {
		if d, ok := parseDate(*p.Date); ok {
			ex.Date = &d
		}
	}
	if p.Currency != nil {
		if code := strings.ToUpper(strings.TrimSpace(*p.Currency)); isCurrencyCode(code) {
			ex.Currency = &code
		}
	}
	if p.Confidence != nil && *p.Confidence >= 0 && *p.Confidence <= 1 {
		c := *p.Confidence
		ex.Confidence = &c
	}
	return ex, nil
}

// jsonObject strips markdown fences and returns the outermost {...}
func jsonObject(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	return []byte(text[start : end+1]), nil
}

func parseAmount(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimLeft(s, "$€£¥")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
