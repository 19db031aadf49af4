package issue

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades how urgently an issue needs attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity 校验并规范化严重程度字符串。
func ParseSeverity(raw string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	default:
		return "", fmt.Errorf("invalid severity %q", raw)
	}
}

// StatusOpen is the only status a freshly submitted issue can carry.
const StatusOpen = "open"

// Suggestion is the classifier's enrichment of a draft. A new suggestion
// always replaces the previous one wholesale.
type Suggestion struct {
	FormattedIssue   string   `json:"formattedIssue"`
	Category         string   `json:"category"`
	Severity         Severity `json:"severity"`
	SuggestedActions []string `json:"suggestedActions"`
}

// Clone returns a deep copy so callers cannot mutate session-owned state.
func (s *Suggestion) Clone() *Suggestion {
	if s == nil {
		return nil
	}
	copied := *s
	copied.SuggestedActions = append([]string{}, s.SuggestedActions...)
	return &copied
}

// Draft is the in-progress issue description owned by one intake session.
type Draft struct {
	Text                 string `json:"descriptionText"`
	Category             string `json:"category,omitempty"`
	TranscriptionPending bool   `json:"transcriptionPending"`
}

// Record is the submission payload and the persisted issue.
type Record struct {
	ID               string    `json:"id,omitempty"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	Severity         Severity  `json:"severity"`
	SuggestedActions []string  `json:"suggestedActions"`
	VehicleModel     string    `json:"vehicleModel"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ComposeRecord builds the submission payload for a draft. Without a
// suggestion the raw text, the selected tag and medium severity are used.
func ComposeRecord(draft Draft, suggestion *Suggestion, vehicleModel string, now time.Time) Record {
	record := Record{
		Description:      draft.Text,
		Category:         draft.Category,
		Severity:         SeverityMedium,
		SuggestedActions: []string{},
		VehicleModel:     vehicleModel,
		Status:           StatusOpen,
		CreatedAt:        now,
	}

	if suggestion == nil {
		return record
	}

	if suggestion.FormattedIssue != "" {
		record.Description = suggestion.FormattedIssue
	}
	if suggestion.Category != "" {
		record.Category = suggestion.Category
	}
	if suggestion.Severity != "" {
		record.Severity = suggestion.Severity
	}
	if len(suggestion.SuggestedActions) > 0 {
		record.SuggestedActions = append([]string{}, suggestion.SuggestedActions...)
	}
	return record
}

// Normalize fills defaults on an incoming record and validates it.
func (r *Record) Normalize(now time.Time) error {
	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		return fmt.Errorf("description is required")
	}

	if r.Severity == "" {
		r.Severity = SeverityMedium
	}
	severity, err := ParseSeverity(string(r.Severity))
	if err != nil {
		return err
	}
	r.Severity = severity

	if r.Status == "" {
		r.Status = StatusOpen
	}
	if r.SuggestedActions == nil {
		r.SuggestedActions = []string{}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	return nil
}
