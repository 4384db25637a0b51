package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestClassifyRemoteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"rate limited", &googleapi.Error{Code: 429}, ErrKindRateLimited},
		{"unauthorized", &googleapi.Error{Code: 401}, ErrKindAuthInvalid},
		{"forbidden", &googleapi.Error{Code: 403}, ErrKindAuthInvalid},
		{"bad request", &googleapi.Error{Code: 400}, ErrKindBadRequest},
		{"server error", &googleapi.Error{Code: 500}, ErrKindNetwork},
		{"bad gateway", &googleapi.Error{Code: 502}, ErrKindNetwork},
		{"odd API code", &googleapi.Error{Code: 418}, ErrKindUnrecognized},
		{"deadline", context.DeadlineExceeded, ErrKindTimeout},
		{"canceled", context.Canceled, ErrKindTimeout},
		{"net timeout", &net.DNSError{IsTimeout: true}, ErrKindTimeout},
		{"net failure", &net.DNSError{IsTimeout: false}, ErrKindNetwork},
		{"wrapped API error", fmt.Errorf("call failed: %w", &googleapi.Error{Code: 429}), ErrKindRateLimited},
		{"plain error", errors.New("something odd"), ErrKindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyRemoteError(tt.err); got != tt.want {
				t.Errorf("classifyRemoteError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	re := &RemoteError{Kind: ErrKindRateLimited, Err: errors.New("429")}
	if got := KindOf(re); got != ErrKindRateLimited {
		t.Errorf("KindOf = %q, want rate_limited", got)
	}
	wrapped := fmt.Errorf("chat: %w", re)
	if got := KindOf(wrapped); got != ErrKindRateLimited {
		t.Errorf("KindOf(wrapped) = %q, want rate_limited", got)
	}
	if got := KindOf(errors.New("plain")); got != ErrKindUnrecognized {
		t.Errorf("KindOf(plain) = %q, want unrecognized", got)
	}
}

func TestRetryable(t *testing.T) {
	for kind, want := range map[ErrorKind]bool{
		ErrKindTimeout:      true,
		ErrKindNetwork:      true,
		ErrKindRateLimited:  false,
		ErrKindAuthInvalid:  false,
		ErrKindBadRequest:   false,
		ErrKindUnrecognized: false,
	} {
		if got := retryable(kind); got != want {
			t.Errorf("retryable(%s) = %v, want %v", kind, got, want)
		}
	}
}

func TestParseInsights(t *testing.T) {
	raw := `[
		{"title": "支出偏高", "content": "建议检查", "icon": "⚠️", "importance": "high"},
		{"title": "订阅重复", "content": "有两个视频平台", "importance": "urgent"},
		{"title": "", "content": "没有标题"},
		{"title": "没有内容", "content": ""}
	]`
	insights, err := parseInsights(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("insights = %d, want 2", len(insights))
	}
	if insights[0].Importance != "high" {
		t.Errorf("importance = %q, want high", insights[0].Importance)
	}
	// Unknown importance collapses to medium, missing icon gets a default.
	if insights[1].Importance != "medium" {
		t.Errorf("importance = %q, want medium", insights[1].Importance)
	}
	if insights[1].Icon == "" {
		t.Error("missing icon not defaulted")
	}
}

func TestParseInsightsCodeFence(t *testing.T) {
	raw := "```json\n[{\"title\": \"提示\", \"content\": \"内容\"}]\n```"
	insights, err := parseInsights(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(insights))
	}
}

func TestParseInsightsRejectsGarbage(t *testing.T) {
	if _, err := parseInsights("the model rambled instead"); err == nil {
		t.Error("expected error for non-JSON text")
	}
	if _, err := parseInsights("[]"); err == nil {
		t.Error("expected error for empty array")
	}
	if _, err := parseInsights(`[{"title": "", "content": ""}]`); err == nil {
		t.Error("expected error when no entry is usable")
	}
}

func TestGeminiHistory(t *testing.T) {
	turns := []ConversationTurn{
		{Role: RoleUser, Text: "问题一"},
		{Role: RoleAssistant, Text: "回答一"},
		{Role: RoleUser, Text: "问题二"},
	}
	history := geminiHistory(turns)
	if len(history) != 3 {
		t.Fatalf("history = %d, want 3", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "model" || history[2].Role != "user" {
		t.Errorf("roles = %s/%s/%s, want user/model/user",
			history[0].Role, history[1].Role, history[2].Role)
	}
}

// Trimming can leave an assistant turn first; the wire format requires
// history to open with a user turn.
func TestGeminiHistoryDropsLeadingModelTurn(t *testing.T) {
	turns := []ConversationTurn{
		{Role: RoleAssistant, Text: "旧回答"},
		{Role: RoleUser, Text: "问题"},
	}
	history := geminiHistory(turns)
	if len(history) != 1 {
		t.Fatalf("history = %d, want 1", len(history))
	}
	if history[0].Role != "user" {
		t.Errorf("first role = %s, want user", history[0].Role)
	}
}

func TestModelFor(t *testing.T) {
	g := &GeminiClient{cfg: GeminiConfig{
		ChatModel:       "flash",
		ComplexModel:    "pro",
		ComplexMinRunes: 10,
	}}

	tests := []struct {
		name string
		req  CompletionRequest
		want string
	}{
		{"short general", CompletionRequest{Message: "你好", Intent: Intent{Kind: IntentGeneralChat}}, "flash"},
		{"optimization", CompletionRequest{Message: "省钱", Intent: Intent{Kind: IntentOptimizationAdvice}}, "pro"},
		{"long message", CompletionRequest{Message: "这是一条超过十个字符的长消息内容", Intent: Intent{Kind: IntentGeneralChat}}, "pro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.modelFor(tt.req); got != tt.want {
				t.Errorf("modelFor = %q, want %q", got, tt.want)
			}
		})
	}
}
