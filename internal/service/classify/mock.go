package classify

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
)

// MockClassifier stands in for the remote analysis service: it waits a fixed
// latency and picks the category at random, independent of the text.
type MockClassifier struct {
	latency time.Duration
	pick    func(n int) int
}

// NewMockClassifier creates the stand-in classifier. pick selects an index in
// [0,n); nil means uniform random.
func NewMockClassifier(latency time.Duration, pick func(n int) int) *MockClassifier {
	if latency < 0 {
		latency = 0
	}
	if pick == nil {
		pick = rand.IntN
	}
	return &MockClassifier{latency: latency, pick: pick}
}

// Classify implements Classifier.
func (m *MockClassifier) Classify(ctx context.Context, text, vehicleModel string) (issue.Suggestion, error) {
	if strings.TrimSpace(text) == "" {
		return issue.Suggestion{}, fmt.Errorf("%w: empty description", ErrClassification)
	}

	timer := time.NewTimer(m.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return issue.Suggestion{}, fmt.Errorf("%w: %w", ErrClassification, ctx.Err())
	case <-timer.C:
	}

	categories := issue.Categories()
	category := categories[m.pick(len(categories))]
	log.Printf("[classify] mock suggestion vehicle=%s category=%s", vehicleModel, category)

	return buildSuggestion(text, vehicleModel, category), nil
}
