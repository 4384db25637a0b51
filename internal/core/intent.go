package core

import (
	"strings"
)

// IntentKind is the closed set of recognized user intents.
type IntentKind string

const (
	IntentSpendingQuery      IntentKind = "spending_query"
	IntentSubscriptionCount  IntentKind = "subscription_count"
	IntentOptimizationAdvice IntentKind = "optimization_advice"
	IntentAddSubscription    IntentKind = "add_subscription"
	IntentGeneralChat        IntentKind = "general_chat"
	IntentUnknown            IntentKind = "unknown"
)

// Intent is a classified message: the kind plus the classifier's
// confidence in it.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	Confidence float64    `json:"confidence"`
}

const (
	confidenceStrong = 0.9
	confidenceWeak   = 0.6
)

type intentRule struct {
	kind   IntentKind
	strong []string
	weak   []string
}

// intentRules is evaluated in order, most specific intent first, so that
// e.g. "添加订阅" lands on add_subscription before the bare "订阅" keyword
// can pull it into subscription_count.
var intentRules = []intentRule{
	{
		kind:   IntentAddSubscription,
		strong: []string{"添加订阅", "新增订阅", "记录订阅", "add subscription", "new subscription"},
		weak:   []string{"添加", "新增", "记一下", "帮我记"},
	},
	{
		kind:   IntentOptimizationAdvice,
		strong: []string{"节省", "省钱", "优化", "太贵", "optimize", "save money"},
		weak:   []string{"建议", "推荐", "取消", "退订", "cancel", "advice", "suggest"},
	},
	{
		kind:   IntentSpendingQuery,
		strong: []string{"花费", "支出", "费用", "成本", "spending", "spend", "expense", "how much"},
		weak:   []string{"钱", "花", "贵", "cost"},
	},
	{
		kind:   IntentSubscriptionCount,
		strong: []string{"几个", "多少个", "数量", "统计", "how many"},
		weak:   []string{"订阅", "subscription"},
	},
	{
		kind:   IntentGeneralChat,
		strong: []string{"你好", "您好", "hello", "帮助", "help", "谢谢"},
		weak:   []string{"怎么", "如何", "什么", "能做", "介绍"},
	},
}

// ClassifyIntent maps a raw user message onto the closed intent set. A
// strong keyword match answers with 0.9, a weak one with 0.6. Strong
// matches of any rule outrank weak matches of every rule; within a tier
// the rule order decides. Unmatched or empty messages are unknown with
// confidence 0.
func ClassifyIntent(message string) Intent {
	norm := normalizeMessage(message)
	if norm == "" {
		return Intent{Kind: IntentUnknown, Confidence: 0}
	}

	for _, rule := range intentRules {
		if matchesAny(norm, rule.strong) {
			return Intent{Kind: rule.kind, Confidence: confidenceStrong}
		}
	}
	for _, rule := range intentRules {
		if matchesAny(norm, rule.weak) {
			return Intent{Kind: rule.kind, Confidence: confidenceWeak}
		}
	}
	return Intent{Kind: IntentUnknown, Confidence: 0}
}

// normalizeMessage lowercases and collapses whitespace so keyword
// matching and cache keys see the same text for trivially different
// spellings of one question.
func normalizeMessage(message string) string {
	return strings.Join(strings.Fields(strings.ToLower(message)), " ")
}

func matchesAny(query string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(query, kw) {
			return true
		}
	}
	return false
}
