package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/vehicle-assist/backend/internal/analysis/rules"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
)

// RuleClassifier derives the category from description keywords instead of
// picking one at random. Text that matches no keyword falls back to
// DefaultCategory.
type RuleClassifier struct {
	DefaultCategory string
}

// NewRuleClassifier 创建基于关键词的本地分类器。
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{DefaultCategory: issue.CategoryEngine}
}

// Classify implements Classifier. It never blocks.
func (r *RuleClassifier) Classify(ctx context.Context, text, vehicleModel string) (issue.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return issue.Suggestion{}, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	if strings.TrimSpace(text) == "" {
		return issue.Suggestion{}, fmt.Errorf("%w: empty description", ErrClassification)
	}

	category, ok := rules.InferCategory(text)
	if !ok {
		category = r.DefaultCategory
	}
	return buildSuggestion(text, vehicleModel, category), nil
}
