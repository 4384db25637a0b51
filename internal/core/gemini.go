package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cxy630/ai-subscription-butler/internal/metrics"
)

const (
	chatSystemInstruction = "你是「AI订阅管家」的智能助手，帮助用户管理和优化他们的订阅服务。" +
		"请基于提供的订阅概况回答问题，给出具体、可执行的建议。" +
		"如果概况中没有答案所需的数据，请如实说明，不要编造数字。" +
		"使用中文回复，语气亲切、专业，回答保持简洁。"

	insightsSystemInstruction = "你是订阅支出分析师。根据用户的订阅概况生成洞察，" +
		"只返回一个JSON数组，不要添加任何解释文字。"

	insightsTemperature = 0.3
)

// GeminiConfig configures the remote model client.
type GeminiConfig struct {
	APIKey          string
	ChatModel       string
	ComplexModel    string
	MaxOutputTokens int32
	Temperature     float32
	RequestTimeout  time.Duration
	ComplexMinRunes int
}

// GeminiClient talks to the Gemini API and maps its failures onto the
// ErrorKind taxonomy. It implements Completer.
type GeminiClient struct {
	client  *genai.Client
	cfg     GeminiConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig, log zerolog.Logger, m *metrics.Metrics) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	if cfg.ChatModel == "" {
		cfg.ChatModel = "gemini-1.5-flash-latest"
	}
	if cfg.ComplexModel == "" {
		cfg.ComplexModel = cfg.ChatModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1000
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	return &GeminiClient{
		client:  client,
		cfg:     cfg,
		log:     log.With().Str("component", "gemini").Logger(),
		metrics: m,
	}, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Complete runs one chat completion: session history plus the user's
// question grounded in the aggregate profile. Transport-level failures are
// retried exactly once with a small jitter; every surfaced error carries
// its taxonomy kind.
func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	modelName := g.modelFor(req)
	history := geminiHistory(req.Context.Turns)
	prompt := genai.Text(fmt.Sprintf("用户当前的订阅概况：\n%s\n请回答用户的问题：%s", req.Context.Profile, req.Message))

	resp, err := g.sendChat(ctx, modelName, history, prompt)
	if err != nil {
		kind := classifyRemoteError(err)
		if retryable(kind) && ctx.Err() == nil {
			g.log.Warn().Err(err).Str("kind", string(kind)).Msg("transient remote failure, retrying once")
			time.Sleep(retryJitter())
			resp, err = g.sendChat(ctx, modelName, history, prompt)
		}
		if err != nil {
			return nil, &RemoteError{Kind: classifyRemoteError(err), Err: err}
		}
	}

	text, tokens := extractText(resp)
	if text == "" {
		return nil, &RemoteError{Kind: ErrKindUnrecognized, Err: errors.New("empty completion from model")}
	}
	return &CompletionResult{Text: text, Model: modelName, TokensUsed: tokens}, nil
}

// Insights asks the model for 3-5 recommendations over the aggregate
// profile and parses the JSON array it returns.
func (g *GeminiClient) Insights(ctx context.Context, profile string) ([]Insight, error) {
	prompt := genai.Text(fmt.Sprintf(
		"以下是用户的订阅概况：\n%s\n请生成3到5条订阅管理洞察，以JSON数组返回。"+
			"每条包含 title、content、icon、importance 字段，importance 取 high、medium 或 low。",
		profile))

	resp, err := g.generateInsights(ctx, prompt)
	if err != nil {
		kind := classifyRemoteError(err)
		if retryable(kind) && ctx.Err() == nil {
			time.Sleep(retryJitter())
			resp, err = g.generateInsights(ctx, prompt)
		}
		if err != nil {
			return nil, &RemoteError{Kind: classifyRemoteError(err), Err: err}
		}
	}

	text, _ := extractText(resp)
	insights, err := parseInsights(text)
	if err != nil {
		return nil, &RemoteError{Kind: ErrKindUnrecognized, Err: err}
	}
	return insights, nil
}

// sendChat performs one SendMessage round trip under the configured
// timeout and records its metrics.
func (g *GeminiClient) sendChat(ctx context.Context, modelName string, history []*genai.Content, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	model := g.client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}
	maxTokens := g.cfg.MaxOutputTokens
	temp := g.cfg.Temperature
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	session := model.StartChat()
	session.History = history

	start := time.Now()
	resp, err := session.SendMessage(callCtx, parts...)
	g.recordRequest(modelName, start, err)
	return resp, err
}

func (g *GeminiClient) generateInsights(ctx context.Context, prompt genai.Part) (*genai.GenerateContentResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	model := g.client.GenerativeModel(g.cfg.ChatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(insightsSystemInstruction)},
	}
	maxTokens := g.cfg.MaxOutputTokens
	temp := float32(insightsTemperature)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	start := time.Now()
	resp, err := model.GenerateContent(callCtx, prompt)
	g.recordRequest(g.cfg.ChatModel, start, err)
	return resp, err
}

func (g *GeminiClient) recordRequest(modelName string, start time.Time, err error) {
	if g.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordRemoteRequest(modelName, status, time.Since(start))
}

// modelFor routes optimization questions and long messages to the complex
// model; everything else takes the cheap one.
func (g *GeminiClient) modelFor(req CompletionRequest) string {
	if req.Intent.Kind == IntentOptimizationAdvice {
		return g.cfg.ComplexModel
	}
	if g.cfg.ComplexMinRunes > 0 && utf8.RuneCountInString(req.Message) >= g.cfg.ComplexMinRunes {
		return g.cfg.ComplexModel
	}
	return g.cfg.ChatModel
}

// geminiHistory maps session turns onto the wire roles. Gemini requires
// chat history to open with a user turn, so a leading model turn left
// over from trimming is dropped.
func geminiHistory(turns []ConversationTurn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	for len(history) > 0 && history[0].Role != "user" {
		history = history[1:]
	}
	return history
}

func extractText(resp *genai.GenerateContentResponse) (string, int) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", 0
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return strings.TrimSpace(b.String()), tokens
}

// parseInsights decodes the model's JSON array, tolerating markdown code
// fences around it. Entries without a title or content are dropped;
// unknown importance values collapse to medium.
func parseInsights(raw string) ([]Insight, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var insights []Insight
	if err := json.Unmarshal([]byte(s), &insights); err != nil {
		return nil, fmt.Errorf("failed to parse insights JSON: %w", err)
	}

	valid := insights[:0]
	for _, in := range insights {
		if in.Title == "" || in.Content == "" {
			continue
		}
		switch in.Importance {
		case "high", "medium", "low":
		default:
			in.Importance = "medium"
		}
		if in.Icon == "" {
			in.Icon = "💡"
		}
		valid = append(valid, in)
	}
	if len(valid) == 0 {
		return nil, errors.New("insights JSON contained no usable entries")
	}
	return valid, nil
}

// classifyRemoteError maps transport and API errors onto the taxonomy.
func classifyRemoteError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrKindTimeout
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return ErrKindRateLimited
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return ErrKindAuthInvalid
		case gerr.Code == http.StatusBadRequest:
			return ErrKindBadRequest
		case gerr.Code >= 500:
			return ErrKindNetwork
		}
		return ErrKindUnrecognized
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return ErrKindTimeout
		}
		return ErrKindNetwork
	}
	return ErrKindUnrecognized
}

func retryable(kind ErrorKind) bool {
	return kind == ErrKindTimeout || kind == ErrKindNetwork
}

func retryJitter() time.Duration {
	return time.Duration(100+rand.Intn(150)) * time.Millisecond
}
