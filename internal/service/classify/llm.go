package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/vehicle-assist/backend/internal/analysis/rules"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
)

// LLMClassifier 使用大模型对问题描述进行分类，失败时回退到备用分类器。
type LLMClassifier struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	fallback Classifier
}

// NewLLMClassifier compiles the prompt -> chat model chain. fallback may be
// nil, in which case model failures surface as ErrClassification.
func NewLLMClassifier(ctx context.Context, chatModel model.BaseChatModel, fallback Classifier) (*LLMClassifier, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile issue classifier chain: %w", err)
	}

	return &LLMClassifier{chain: runnable, fallback: fallback}, nil
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, text, vehicleModel string) (issue.Suggestion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return issue.Suggestion{}, fmt.Errorf("%w: empty description", ErrClassification)
	}

	input := map[string]any{
		"vehicle":     vehicleModel,
		"description": text,
		"categories":  strings.Join(issue.Categories(), ", "),
	}

	msg, err := c.chain.Invoke(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return issue.Suggestion{}, fmt.Errorf("%w: %w", ErrClassification, ctx.Err())
		}
		log.Printf("[classify] llm invoke failed, use fallback: %v", err)
		return c.useFallback(ctx, text, vehicleModel, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return c.useFallback(ctx, text, vehicleModel, fmt.Errorf("empty model output"))
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[classify] llm output parse failed, use fallback: %v", err)
		return c.useFallback(ctx, text, vehicleModel, err)
	}

	category, ok := normalizeCategory(payload.Category)
	if !ok {
		return c.useFallback(ctx, text, vehicleModel, fmt.Errorf("unknown category %q", payload.Category))
	}

	severity, err := issue.ParseSeverity(payload.Severity)
	if err != nil {
		severity = rules.ClassifySeverity(text)
	}

	actions := make([]string, 0, len(payload.SuggestedActions))
	for _, action := range payload.SuggestedActions {
		if action = strings.TrimSpace(action); action != "" {
			actions = append(actions, action)
		}
	}
	if len(actions) == 0 {
		actions = DefaultActions()
	}

	return issue.Suggestion{
		// the display format stays fixed regardless of what the model returns
		FormattedIssue:   FormatIssue(vehicleModel, text),
		Category:         category,
		Severity:         severity,
		SuggestedActions: actions,
	}, nil
}

func (c *LLMClassifier) useFallback(ctx context.Context, text, vehicleModel string, cause error) (issue.Suggestion, error) {
	if c.fallback == nil {
		return issue.Suggestion{}, fmt.Errorf("%w: %w", ErrClassification, cause)
	}
	return c.fallback.Classify(ctx, text, vehicleModel)
}

type classifierPayload struct {
	Category         string   `json:"category"`
	Severity         string   `json:"severity"`
	SuggestedActions []string `json:"suggestedActions"`
}

// parseClassifierOutput 解析大模型返回的 JSON，容忍前后多余文本。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func normalizeCategory(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, category := range issue.Categories() {
		if strings.EqualFold(category, raw) {
			return category, true
		}
	}
	return "", false
}

const classifierSystemPrompt = "You are a service advisor for Tata Motors vehicles. Read the owner's problem description and classify it.\n" +
	"Return exactly one JSON object and nothing else, with the fields: category (one of: {categories}), " +
	"severity (low, medium or high; brakes or anything affecting stopping is high, engine or transmission faults are at least medium), " +
	"suggestedActions (an array of two to four short next steps for the owner)."

const classifierUserPrompt = "Vehicle: {vehicle}\n\nDescription:\n{description}"
