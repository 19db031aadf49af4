package rules

import "strings"

// ReplyKind 标识命中的固定回复类别。
type ReplyKind string

const (
	ReplyMaintenance   ReplyKind = "maintenance"
	ReplyWarranty      ReplyKind = "warranty"
	ReplyServiceCenter ReplyKind = "service-center"
	ReplyEmergency     ReplyKind = "emergency"
	ReplyGreeting      ReplyKind = "greeting"
	ReplyThanks        ReplyKind = "thanks"
	ReplyDefault       ReplyKind = "default"
)

// Greeting is the bot message every new conversation opens with.
const Greeting = "Hello! I'm your intelligent Tata vehicle assistant powered by advanced AI. How can I help you today?"

type replyRule struct {
	kind     ReplyKind
	keywords []string
}

// replyRules is evaluated top to bottom; the first rule with any matching
// keyword wins. "service center" can never be reached through rule three
// because "service" already matches the maintenance rule.
var replyRules = []replyRule{
	{kind: ReplyMaintenance, keywords: []string{"maintenance", "service"}},
	{kind: ReplyWarranty, keywords: []string{"warranty", "guarantee"}},
	{kind: ReplyServiceCenter, keywords: []string{"service center", "mechanic", "repair"}},
	{kind: ReplyEmergency, keywords: []string{"emergency", "breakdown", "help"}},
	{kind: ReplyGreeting, keywords: []string{"hello", "hi", "hey"}},
	{kind: ReplyThanks, keywords: []string{"thank"}},
}

var cannedReplies = map[ReplyKind]string{
	ReplyMaintenance:   "For optimal performance, I recommend following the Tata service schedule. Your vehicle should be serviced every 10,000 km or 6 months. Would you like me to check your specific model's requirements?",
	ReplyWarranty:      "Tata vehicles come with comprehensive warranty coverage. I can help you check your warranty status and coverage details. Please share your vehicle registration number.",
	ReplyServiceCenter: "I can locate the nearest authorized Tata service center for you. Please share your current location or preferred area.",
	ReplyEmergency:     "For emergency roadside assistance, please call Tata Motors 24/7 helpline: 1800-209-7979. I can also guide you through basic troubleshooting steps.",
	ReplyGreeting:      "Hello! I'm your AI-powered Tata assistant. I can help with maintenance schedules, troubleshooting, service centers, and warranty information. What would you like to know?",
	ReplyThanks:        "You're welcome! I'm always here to help with your Tata vehicle needs. Feel free to ask me anything else!",
	ReplyDefault:       "I'm here to assist with vehicle maintenance, service schedules, troubleshooting, warranty information, and connecting you with service centers. What specific help do you need today?",
}

// ClassifyReply 返回用户消息命中的回复类别，匹配不区分大小写。
func ClassifyReply(userMessage string) ReplyKind {
	normalized := strings.ToLower(userMessage)
	for _, rule := range replyRules {
		if containsAny(normalized, rule.keywords) {
			return rule.kind
		}
	}
	return ReplyDefault
}

// SelectChatReply returns the canned reply for a user message.
func SelectChatReply(userMessage string) string {
	return ReplyText(ClassifyReply(userMessage))
}

// ReplyText returns the canned text for kind, or the default reply for an
// unknown kind.
func ReplyText(kind ReplyKind) string {
	if text, ok := cannedReplies[kind]; ok {
		return text
	}
	return cannedReplies[ReplyDefault]
}

func containsAny(text string, keywords []string) bool {
	for _, word := range keywords {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
