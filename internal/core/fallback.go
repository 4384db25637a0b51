package core

import (
	"fmt"
	"sort"
	"strings"
)

const (
	optimizationTemplate = "💡 优化建议：定期评估每个订阅的使用频率，优先保留高频使用的服务；" +
		"留意功能重复的订阅（比如多个视频或音乐平台），只保留其中一个；" +
		"暂时不用的服务可以先暂停，观察一段时间再决定是否退订。"

	addSubscriptionTemplate = "➕ 您可以在订阅管理页面手动添加订阅，" +
		"也可以直接告诉我服务名称、价格和扣费周期，我来帮您记录。"

	greetingTemplate = "🤖 您好！我是您的AI订阅管家。我可以帮您：\n" +
		"• 分析订阅支出情况\n" +
		"• 统计活跃订阅数量\n" +
		"• 提供省钱和优化建议\n" +
		"• 记录新的订阅\n" +
		"请告诉我您想了解什么？"
)

// fallbackRespond produces the deterministic local answer for an intent.
// It is total and pure: any intent and any context, including a user with
// no subscriptions at all, yields a non-empty response, and identical
// inputs always yield identical text.
func fallbackRespond(kind IntentKind, uc UserContext) string {
	switch kind {
	case IntentSpendingQuery:
		return fmt.Sprintf("💰 您目前的月度订阅支出为 ¥%.2f，折合年度支出约 ¥%.2f。共有 %d 个活跃订阅。",
			uc.MonthlySpending, uc.MonthlySpending*12, len(uc.Subscriptions))

	case IntentSubscriptionCount:
		if len(uc.Subscriptions) == 0 {
			return "📋 您目前还没有任何活跃订阅。告诉我服务名称和价格，我来帮您记录第一个。"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "📋 您目前共有 %d 个活跃订阅。", len(uc.Subscriptions))
		for _, cat := range sortedCategories(uc.CategoryTotals) {
			stat := uc.CategoryTotals[cat]
			fmt.Fprintf(&b, "\n• %s：%d 个，月支出 ¥%.2f", cat, stat.Count, stat.Spending)
		}
		return b.String()

	case IntentOptimizationAdvice:
		return optimizationTemplate

	case IntentAddSubscription:
		return addSubscriptionTemplate

	default:
		return greetingTemplate
	}
}

// fallbackCacheable reports whether a fallback answer for kind may be
// cached. Spending and count answers embed live portfolio figures; only
// the fixed templates are reusable.
func fallbackCacheable(kind IntentKind) bool {
	switch kind {
	case IntentSpendingQuery, IntentSubscriptionCount:
		return false
	default:
		return true
	}
}

// defaultInsights is the rule-based stand-in when the remote model cannot
// deliver: spending and count thresholds over the same aggregates the
// remote path would have seen.
func defaultInsights(uc UserContext) []Insight {
	var insights []Insight

	if uc.MonthlySpending > 200 {
		insights = append(insights, Insight{
			Title:      "订阅支出偏高",
			Content:    fmt.Sprintf("您的月度订阅支出已达 ¥%.2f，建议审视使用频率较低的服务，优先保留高频使用的订阅。", uc.MonthlySpending),
			Icon:       "⚠️",
			Importance: "high",
		})
	}
	if len(uc.Subscriptions) >= 5 {
		insights = append(insights, Insight{
			Title:      "订阅数量较多",
			Content:    fmt.Sprintf("您目前有 %d 个活跃订阅，可以检查是否存在功能重复的服务，例如多个视频或音乐平台。", len(uc.Subscriptions)),
			Icon:       "📊",
			Importance: "medium",
		})
	}
	if stat, ok := uc.CategoryTotals["娱乐"]; ok && stat.Spending > 50 {
		insights = append(insights, Insight{
			Title:      "娱乐订阅提醒",
			Content:    fmt.Sprintf("娱乐类订阅每月花费 ¥%.2f，轮换开通视频平台的会员可以明显降低这部分支出。", stat.Spending),
			Icon:       "🎬",
			Importance: "medium",
		})
	}
	if len(insights) == 0 {
		insights = append(insights, Insight{
			Title:      "订阅管理良好",
			Content:    "您的订阅支出处于合理区间。保持定期检查订阅的习惯，就能持续避免不必要的扣费。",
			Icon:       "✅",
			Importance: "low",
		})
	}
	return insights
}

func sortedCategories(totals map[string]CategoryStat) []string {
	categories := make([]string, 0, len(totals))
	for cat := range totals {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	return categories
}
