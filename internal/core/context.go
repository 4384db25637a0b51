package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// BoundedContext is the deterministic, size-bounded view of a user the
// assistant is allowed to reason over: the last few turns of the session
// plus an aggregate spending profile. Subscription names never appear in
// it, so nothing identifying leaves the process with a remote call.
type BoundedContext struct {
	// Profile is the aggregate summary injected into prompts.
	Profile string
	// Digest fingerprints Profile; it keys the response cache so cached
	// answers die with the data they were computed from.
	Digest string
	// Turns are the most recent turns of the session, oldest first.
	Turns []ConversationTurn
}

// assembleContext builds the bounded context for one request. It is a
// pure function: identical inputs produce byte-identical profiles and
// digests, which the response cache depends on.
func assembleContext(uc UserContext, turns []ConversationTurn, maxTurns int) BoundedContext {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	profile := buildProfile(uc)
	sum := sha256.Sum256([]byte(profile))
	return BoundedContext{
		Profile: profile,
		Digest:  hex.EncodeToString(sum[:]),
		Turns:   turns,
	}
}

// buildProfile serializes the numeric aggregates of a user's
// subscriptions. Categories are sorted by name so map iteration order
// cannot change the output.
func buildProfile(uc UserContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "月度订阅支出: ¥%.2f\n", uc.MonthlySpending)
	fmt.Fprintf(&b, "活跃订阅数量: %d\n", len(uc.Subscriptions))
	for _, cat := range sortedCategories(uc.CategoryTotals) {
		stat := uc.CategoryTotals[cat]
		fmt.Fprintf(&b, "分类「%s」: %d 项, 月支出 ¥%.2f\n", cat, stat.Count, stat.Spending)
	}
	return b.String()
}
