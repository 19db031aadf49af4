package classify

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/zhouzirui/vehicle-assist/backend/internal/analysis/rules"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
)

// ErrClassification marks every failure of the issue classifier.
var ErrClassification = errors.New("classification failed")

// Classifier enriches a free-text description with category, severity and
// suggested next steps.
type Classifier interface {
	Classify(ctx context.Context, text, vehicleModel string) (issue.Suggestion, error)
}

// DefaultMockLatency is the simulated analysis time of MockClassifier.
const DefaultMockLatency = 1500 * time.Millisecond

var defaultActions = []string{
	"Schedule inspection with authorized Tata service center",
	"Check warranty coverage for this issue",
	"Document any unusual sounds or behaviors",
	"Avoid heavy driving until resolved",
}

// DefaultActions returns the fixed follow-up list attached to every suggestion.
func DefaultActions() []string {
	return append([]string{}, defaultActions...)
}

// FormatIssue renders "<vehicle> - <Description>" with the first letter of
// the description upper-cased.
func FormatIssue(vehicleModel, text string) string {
	return vehicleModel + " - " + capitalize(strings.TrimSpace(text))
}

func capitalize(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

func buildSuggestion(text, vehicleModel, category string) issue.Suggestion {
	return issue.Suggestion{
		FormattedIssue:   FormatIssue(vehicleModel, text),
		Category:         category,
		Severity:         rules.ClassifySeverity(text),
		SuggestedActions: DefaultActions(),
	}
}
