package rules

import (
	"strings"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
)

var (
	highSeverityKeywords   = []string{"brake", "stop"}
	mediumSeverityKeywords = []string{"engine", "transmission"}
)

// ClassifySeverity derives issue severity from the description text.
func ClassifySeverity(text string) issue.Severity {
	normalized := strings.ToLower(text)
	switch {
	case containsAny(normalized, highSeverityKeywords):
		return issue.SeverityHigh
	case containsAny(normalized, mediumSeverityKeywords):
		return issue.SeverityMedium
	default:
		return issue.SeverityLow
	}
}

// categoryKeywords maps description keywords to classifier categories. Order
// matters: brakes outrank engine so "engine stalls when I brake" reads as a
// braking problem, matching the severity ordering above.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{category: issue.CategoryBrakes, keywords: []string{"brake", "stopping"}},
	{category: issue.CategoryTransmission, keywords: []string{"transmission", "gear", "clutch", "shift"}},
	{category: issue.CategoryEngine, keywords: []string{"engine", "oil", "overheat", "exhaust", "sluggish"}},
	{category: issue.CategoryACHeating, keywords: []string{" ac ", "a/c", "air condition", "cooling", "heater", "heating"}},
	{category: issue.CategorySuspension, keywords: []string{"suspension", "vibration", "steering", "shock", "tire", "tyre"}},
	{category: issue.CategoryElectrical, keywords: []string{"electrical", "battery", "light", "wiring", "fuse", "charging"}},
}

// InferCategory 根据描述关键词推断问题类别，无法判断时返回 false。
func InferCategory(text string) (string, bool) {
	// padded so " ac " also matches at either end of the text
	normalized := " " + strings.ToLower(text) + " "
	for _, entry := range categoryKeywords {
		if containsAny(normalized, entry.keywords) {
			return entry.category, true
		}
	}
	return "", false
}
