package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/lsat-prep/adaptive/internal/models"
)

// LLMClient is the interface every generator backend satisfies.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error)
}

// LLMResponse holds the raw response content and token usage.
type LLMResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// Options selects the backend: Mock wins over CLIPath, which wins over the API.
type Options struct {
	Mock    bool
	CLIPath string
	Model   string
	APIKey  string
}

// Generator wraps an LLMClient with prompt building and parsing.
type Generator struct {
	llm   LLMClient
	model string
}

func NewGenerator(opts Options) *Generator {
	switch {
	case opts.Mock:
		log.Println("[generator] using mock data")
		return &Generator{llm: NewMockClient(), model: "mock"}
	case opts.CLIPath != "":
		log.Println("[generator] using Claude CLI at", opts.CLIPath)
		return &Generator{llm: NewCLIClient(opts.CLIPath), model: "claude-cli"}
	default:
		log.Println("[generator] using Anthropic API:", opts.Model)
		return &Generator{llm: NewAPIClient(opts.APIKey, opts.Model), model: opts.Model}
	}
}

func (g *Generator) ModelName() string {
	return g.model
}

// GenerateBatch asks the model for count questions in one category.
func (g *Generator) GenerateBatch(ctx context.Context, category models.Category, level models.StudyLevel, count int) (*GeneratedBatch, *LLMResponse, error) {
	resp, err := g.llm.Generate(ctx, SystemPrompt(), BuildUserPrompt(category, level, count))
	if err != nil {
		return nil, nil, fmt.Errorf("generate batch: %w", err)
	}

	batch, err := ParseResponse(resp.Content)
	if err != nil {
		return nil, resp, fmt.Errorf("parse batch: %w", err)
	}
	return batch, resp, nil
}

// ── APIClient: Anthropic SDK ───────────────────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
}

func NewAPIClient(apiKey, model string) *APIClient {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &APIClient{client: &client, model: model}
}

func (c *APIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   8192,
		Temperature: param.NewOpt(0.8),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	if responseText == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return &LLMResponse{
		Content:      responseText,
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			sleepDuration := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("[generator] retrying Anthropic API call in %v (attempt %d)", sleepDuration, attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepDuration):
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		log.Printf("[generator] WARN: Anthropic API attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}

// ── MockClient: Local Development ─────────────────────────

type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// Generate answers with as many questions as the user prompt asks for.
func (m *MockClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	count := 6
	fmt.Sscanf(userPrompt, "Generate exactly %d", &count)
	return &LLMResponse{
		Content:      buildMockJSON(count),
		PromptTokens: 1500,
		OutputTokens: 300 * count,
	}, nil
}

func buildMockJSON(count int) string {
	keys := []string{"A", "B", "C", "D"}
	topics := []string{
		"sufficient conditions", "causal claims", "sampling bias",
		"analogies", "necessary assumptions", "scope shifts",
	}
	plan := DifficultyPlan(count)

	batch := GeneratedBatch{Questions: make([]GeneratedQuestion, count)}
	for i := 0; i < count; i++ {
		topic := topics[i%len(topics)]
		correct := keys[i%len(keys)]
		q := GeneratedQuestion{
			Difficulty:   plan[i],
			QuestionType: models.QuestionSingle,
			Stem:         fmt.Sprintf("[Mock %d] Which statement about %s is most accurate?", i+1, topic),
			CorrectKeys:  []string{correct},
			Explanation:  fmt.Sprintf("[Mock] Option %s states the rule for %s; the other options reverse or overextend it.", correct, topic),
		}
		for _, k := range keys {
			label := "a common misreading of"
			if k == correct {
				label = "the accurate rule for"
			}
			q.Options = append(q.Options, GeneratedOption{Key: k, Text: fmt.Sprintf("[Mock] Option %s is %s %s.", k, label, topic)})
		}
		batch.Questions[i] = q
	}

	data, _ := json.Marshal(batch)
	return string(data)
}
