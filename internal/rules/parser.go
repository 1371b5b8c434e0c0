package rules

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	severityRe = regexp.MustCompile(`(?i)\b(medium|high|critical)\b`)
	betweenRe  = regexp.MustCompile(`(?i)between\s+([0-9]+(?:\.[0-9]+)?)\s+and\s+([0-9]+(?:\.[0-9]+)?)\s*([^\s"]+)?`)
	compareRe  = regexp.MustCompile(`(?i)(above|greater than|>=|>|below|less than|<=|<)\s*([0-9]+(?:\.[0-9]+)?)\s*([^\s"]+)?`)
	messageRe  = regexp.MustCompile(`"([^"]*)"`)
)

// ParsePrompt reads a short rule description such as
// `high between 81 and 90 kWh "Consumption high"` or `critical above 91`.
// "above X" is stored as [X, OpenEndedMax] and "below X" as [0, X].
func ParsePrompt(prompt string) (RuleInput, *ValidationError) {
	clean := strings.TrimSpace(prompt)
	if clean == "" {
		return RuleInput{}, &ValidationError{Code: "RULE_AMBIGUOUS", Message: "empty rule prompt", Details: []ErrorDetail{{Field: "prompt", Problem: "empty", Hint: "Provide a rule prompt"}}}
	}

	var details []ErrorDetail
	var in RuleInput

	// The quoted message is free text; keywords inside it are not read.
	if loc := messageRe.FindStringSubmatchIndex(clean); loc != nil {
		in.Message = strings.TrimSpace(clean[loc[2]:loc[3]])
		clean = clean[:loc[0]] + " " + clean[loc[1]:]
	}

	if m := severityRe.FindStringSubmatch(clean); len(m) > 1 {
		in.Severity = strings.ToUpper(m[1])
	} else {
		details = append(details, ErrorDetail{Field: "severity", Problem: "missing", Hint: "Example: high"})
	}

	if between := betweenRe.FindStringSubmatch(clean); len(between) >= 3 {
		minVal, _ := strconv.ParseFloat(between[1], 64)
		maxVal, _ := strconv.ParseFloat(between[2], 64)
		in.RangeMin, in.RangeMax = &minVal, &maxVal
		if len(between) > 3 {
			in.Unit = between[3]
		}
	} else if cmp := compareRe.FindStringSubmatch(clean); len(cmp) >= 3 {
		val, _ := strconv.ParseFloat(cmp[2], 64)
		if isUpper(cmp[1]) {
			zero := 0.0
			in.RangeMin, in.RangeMax = &zero, &val
		} else {
			top := float64(OpenEndedMax)
			in.RangeMin, in.RangeMax = &val, &top
		}
		if len(cmp) > 3 {
			in.Unit = cmp[3]
		}
	} else {
		details = append(details, ErrorDetail{Field: "range", Problem: "missing", Hint: "Example: between 81 and 90"})
	}

	if len(details) > 0 {
		return RuleInput{}, &ValidationError{Code: "RULE_AMBIGUOUS", Message: "rule prompt is missing required fields", Details: details}
	}
	return in, nil
}

// isUpper reports whether the comparison bounds the band from above.
func isUpper(op string) bool {
	switch strings.TrimSpace(strings.ToLower(op)) {
	case "below", "less than", "<", "<=":
		return true
	}
	return false
}

// Merge fills empty fields of in from the parsed prompt.
func Merge(in, parsed RuleInput) RuleInput {
	if in.Severity == "" {
		in.Severity = parsed.Severity
	}
	if in.Message == "" {
		in.Message = parsed.Message
	}
	if in.RangeMin == nil {
		in.RangeMin = parsed.RangeMin
	}
	if in.RangeMax == nil {
		in.RangeMax = parsed.RangeMax
	}
	if in.Unit == "" {
		in.Unit = parsed.Unit
	}
	return in
}
