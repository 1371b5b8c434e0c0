package rules

import (
	"fmt"

	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

// OpenEndedMax is the upper bound stored for bands written as "above X".
const OpenEndedMax = 9999999

// RuleInput is a rule as submitted by an operator. Prompt, when set, fills
// any field left empty.
type RuleInput struct {
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	RangeMin *float64 `json:"rangeMin"`
	RangeMax *float64 `json:"rangeMax"`
	Unit     string   `json:"unit"`
	Prompt   string   `json:"prompt,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

type ValidationError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details"`
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s %s", e.Message, e.Details[0].Field, e.Details[0].Problem)
}

// Rule converts validated input for the given product.
func (in RuleInput) Rule(productID string) storage.Rule {
	sev, _ := storage.ParseSeverity(in.Severity)
	rule := storage.Rule{ProductID: productID, Severity: sev, Message: in.Message, Unit: in.Unit}
	if in.RangeMin != nil {
		rule.RangeMin = *in.RangeMin
	}
	if in.RangeMax != nil {
		rule.RangeMax = *in.RangeMax
	}
	return rule
}
