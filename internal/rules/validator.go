package rules

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

const (
	maxUnitLength    = 20
	maxMessageLength = 255
)

// Validate normalizes whitespace and checks a rule before it is stored.
// Inverted bands are rejected here; min == max is a single-point band.
func Validate(in RuleInput) (RuleInput, *ValidationError) {
	if strings.TrimSpace(in.Prompt) != "" {
		parsed, perr := ParsePrompt(in.Prompt)
		if perr != nil {
			return RuleInput{}, perr
		}
		in = Merge(in, parsed)
	}
	in.Severity = strings.TrimSpace(in.Severity)
	in.Message = strings.TrimSpace(in.Message)
	in.Unit = strings.TrimSpace(in.Unit)

	var details []ErrorDetail
	if sev, ok := storage.ParseSeverity(in.Severity); ok {
		in.Severity = string(sev)
	} else {
		details = append(details, ErrorDetail{Field: "severity", Problem: "invalid", Hint: "Use MEDIUM, HIGH, or CRITICAL"})
	}
	if utf8.RuneCountInString(in.Message) > maxMessageLength {
		details = append(details, ErrorDetail{Field: "message", Problem: "too long", Hint: fmt.Sprintf("max %d characters", maxMessageLength)})
	}
	if utf8.RuneCountInString(in.Unit) > maxUnitLength {
		details = append(details, ErrorDetail{Field: "unit", Problem: "too long", Hint: fmt.Sprintf("max %d characters", maxUnitLength)})
	}
	details = append(details, checkBound("rangeMin", in.RangeMin)...)
	details = append(details, checkBound("rangeMax", in.RangeMax)...)
	if in.RangeMin != nil && in.RangeMax != nil && finite(*in.RangeMin) && finite(*in.RangeMax) && *in.RangeMin > *in.RangeMax {
		details = append(details, ErrorDetail{Field: "rangeMin", Problem: "inverted range", Hint: "rangeMin <= rangeMax"})
	}

	if len(details) > 0 {
		return RuleInput{}, &ValidationError{Code: "RULE_SCHEMA_INVALID", Message: "rule failed validation", Details: details}
	}
	return in, nil
}

func checkBound(field string, v *float64) []ErrorDetail {
	if v == nil {
		return []ErrorDetail{{Field: field, Problem: "missing", Hint: "Provide a number"}}
	}
	if !finite(*v) {
		return []ErrorDetail{{Field: field, Problem: "invalid", Hint: fmt.Sprintf("Use a finite number; open-ended bands use %d", OpenEndedMax)}}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
