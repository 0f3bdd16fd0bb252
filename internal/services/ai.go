package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/huangang/reviewbuddy/backend/internal/config"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

// ErrLLMNotConfigured is returned when no model endpoint has usable credentials.
var ErrLLMNotConfigured = errors.New("Gemini API Key not configured")

const (
	defaultGeminiModel = "gemini-1.5-flash"
	llmCallTimeout     = 90 * time.Second
)

// CompletionRequest is one prompt sent to the model chain.
type CompletionRequest struct {
	Prompt string
	// JSON asks the provider for a JSON-object constrained answer.
	JSON     bool
	Purpose  string
	ReviewID *uint
	// Brand supplies the per-brand Gemini key, tried after admin-managed configs.
	Brand *models.BrandConfig
}

// Completion is the text a model returned plus accounting data.
type Completion struct {
	Text             string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TextGenerator is the language-model boundary of the review pipeline.
type TextGenerator interface {
	// Ready reports whether at least one endpoint has credentials for brand.
	Ready(brand *models.BrandConfig) bool
	Generate(ctx context.Context, req CompletionRequest) (*Completion, error)
}

type AIService struct {
	db     *gorm.DB
	config *config.LLMConfig
	usage  *AIUsageService
}

func NewAIService(db *gorm.DB, cfg *config.LLMConfig) *AIService {
	if cfg == nil {
		cfg = &config.LLMConfig{}
	}
	return &AIService{
		db:     db,
		config: cfg,
		usage:  NewAIUsageService(db),
	}
}

func (s *AIService) Ready(brand *models.BrandConfig) bool {
	return len(s.getOrderedLLMConfigs(brand)) > 0
}

// Generate tries each configured endpoint in order until one answers.
func (s *AIService) Generate(ctx context.Context, req CompletionRequest) (*Completion, error) {
	llmConfigs := s.getOrderedLLMConfigs(req.Brand)
	if len(llmConfigs) == 0 {
		return nil, ErrLLMNotConfigured
	}

	var lastErr error
	for i := range llmConfigs {
		llmConfig := &llmConfigs[i]
		logger.Debugf("[AI] Attempting LLM %d/%d: %s (provider: %s, model: %s, purpose: %s)",
			i+1, len(llmConfigs), llmConfig.Name, llmConfig.Provider, llmConfig.Model, req.Purpose)

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
		result, err := s.callLLM(callCtx, llmConfig, req)
		cancel()
		elapsed := time.Since(start)

		s.recordUsage(llmConfig, req, result, elapsed, err)
		if err == nil {
			return result, nil
		}

		lastErr = err
		logger.Warn().Err(err).Str("llm", llmConfig.Name).Msg("[AI] LLM call failed, trying next")
	}

	return nil, fmt.Errorf("all LLMs failed, last error: %w", lastErr)
}

func (s *AIService) recordUsage(llmConfig *models.LLMConfig, req CompletionRequest, result *Completion, elapsed time.Duration, callErr error) {
	outcome := "success"
	if callErr != nil {
		outcome = "error"
	}
	llmCalls.WithLabelValues(llmConfig.Provider, req.Purpose, outcome).Inc()
	llmLatency.WithLabelValues(llmConfig.Provider, req.Purpose).Observe(elapsed.Seconds())

	entry := &models.AIUsageLog{
		ReviewID:  req.ReviewID,
		Purpose:   req.Purpose,
		Provider:  llmConfig.Provider,
		Model:     llmConfig.Model,
		LatencyMs: elapsed.Milliseconds(),
		Success:   callErr == nil,
	}
	if llmConfig.ID != 0 {
		id := llmConfig.ID
		entry.LLMConfigID = &id
	}
	if result != nil {
		entry.Model = result.Model
		entry.PromptTokens = result.PromptTokens
		entry.CompletionTokens = result.CompletionTokens
	}
	if callErr != nil {
		msg := callErr.Error()
		if len(msg) > 500 {
			msg = msg[:500]
		}
		entry.ErrorMessage = msg
	}
	s.usage.Record(entry)
}

// getOrderedLLMConfigs lists endpoints in the order they are tried: the
// default admin config, other active admin configs, the brand's own Gemini
// key, then the environment or config-file model.
func (s *AIService) getOrderedLLMConfigs(brand *models.BrandConfig) []models.LLMConfig {
	var configs []models.LLMConfig

	if s.db != nil {
		var defaultConfig models.LLMConfig
		if err := s.db.Where("is_default = ? AND is_active = ?", true, true).First(&defaultConfig).Error; err == nil {
			configs = append(configs, defaultConfig)
		}

		var backupConfigs []models.LLMConfig
		s.db.Where("is_active = ?", true).Order("id ASC").Find(&backupConfigs)
		for _, c := range backupConfigs {
			if len(configs) > 0 && configs[0].ID == c.ID {
				continue
			}
			configs = append(configs, c)
		}
	}

	if brand != nil && brand.GeminiAPIKey != "" {
		configs = append(configs, models.LLMConfig{
			Name:     "brand",
			Provider: "gemini",
			APIKey:   brand.GeminiAPIKey,
			Model:    defaultGeminiModel,
		})
	}

	if s.config.APIKey != "" || s.config.Provider == "ollama" {
		configs = append(configs, models.LLMConfig{
			Name:     "config",
			Provider: s.config.Provider,
			BaseURL:  s.config.BaseURL,
			APIKey:   s.config.APIKey,
			Model:    s.config.Model,
		})
	}

	return configs
}

// callLLM dispatches to the appropriate provider-specific function based on Provider field
func (s *AIService) callLLM(ctx context.Context, llmConfig *models.LLMConfig, req CompletionRequest) (*Completion, error) {
	switch llmConfig.Provider {
	case "anthropic":
		return s.callAnthropic(ctx, llmConfig, req)
	case "ollama":
		return s.callOllama(ctx, llmConfig, req)
	case "gemini", "":
		return s.callGemini(ctx, llmConfig, req)
	case "azure":
		return s.callAzure(ctx, llmConfig, req)
	default:
		// openai and other OpenAI-compatible services
		return s.callOpenAI(ctx, llmConfig, req)
	}
}

func temperatureOf(llmConfig *models.LLMConfig) float32 {
	if llmConfig.Temperature > 0 {
		return float32(llmConfig.Temperature)
	}
	return 0.2
}

func chatRequest(model string, llmConfig *models.LLMConfig, req CompletionRequest) openai.ChatCompletionRequest {
	r := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: temperatureOf(llmConfig),
	}
	if req.JSON {
		r.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return r
}

func completionFromOpenAI(provider string, resp openai.ChatCompletionResponse) (*Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", provider)
	}
	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		Provider:         provider,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// callOpenAI handles OpenAI and OpenAI-compatible APIs (including custom endpoints)
func (s *AIService) callOpenAI(ctx context.Context, llmConfig *models.LLMConfig, req CompletionRequest) (*Completion, error) {
	clientConfig := openai.DefaultConfig(llmConfig.APIKey)
	if llmConfig.BaseURL != "" {
		clientConfig.BaseURL = llmConfig.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	model := llmConfig.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	resp, err := client.CreateChatCompletion(ctx, chatRequest(model, llmConfig, req))
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	return completionFromOpenAI("openai", resp)
}

// callAzure handles Azure OpenAI. BaseURL is https://{resource}.openai.azure.com
// and Model is the deployment name.
func (s *AIService) callAzure(ctx context.Context, llmConfig *models.LLMConfig, req CompletionRequest) (*Completion, error) {
	client := openai.NewClientWithConfig(openai.DefaultAzureConfig(llmConfig.APIKey, llmConfig.BaseURL))

	resp, err := client.CreateChatCompletion(ctx, chatRequest(llmConfig.Model, llmConfig, req))
	if err != nil {
		return nil, fmt.Errorf("Azure OpenAI API error: %w", err)
	}
	return completionFromOpenAI("azure", resp)
}

// callAnthropic has no JSON mode; the risk prompt already demands raw JSON and
// the parser strips stray code fences.
func (s *AIService) callAnthropic(ctx context.Context, llmConfig *models.LLMConfig, req CompletionRequest) (*Completion, error) {
	opts := []option.RequestOption{option.WithAPIKey(llmConfig.APIKey)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(llmConfig.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(llmConfig.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	model := llmConfig.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Completion{
		Text:             content.String(),
		Provider:         "anthropic",
		Model:            model,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// callOllama handles Ollama API using the native SDK
func (s *AIService) callOllama(ctx context.Context, llmConfig *models.LLMConfig, req CompletionRequest) (*Completion, error) {
	baseURL := llmConfig.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := llmConfig.Model
	if model == "" {
		model = "llama3"
	}

	chatReq := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "user", Content: req.Prompt},
		},
		Options: map[string]interface{}{
			"temperature": temperatureOf(llmConfig),
		},
	}
	if req.JSON {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	var (
		content          strings.Builder
		promptTokens     int
		completionTokens int
	)
	err = client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			completionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama API error: %w", err)
	}

	return &Completion{
		Text:             content.String(),
		Provider:         "ollama",
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

// callGemini handles Google Gemini API using the native SDK
func (s *AIService) callGemini(ctx context.Context, llmConfig *models.LLMConfig, req CompletionRequest) (*Completion, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  llmConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini client error: %w", err)
	}

	model := llmConfig.Model
	if model == "" {
		model = defaultGeminiModel
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperatureOf(llmConfig)),
	}
	if req.JSON {
		genConfig.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	out := &Completion{
		Text:     resp.Text(),
		Provider: "gemini",
		Model:    model,
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// TestConnection sends a tiny prompt through one admin-managed config.
func (s *AIService) TestConnection(ctx context.Context, llmConfigID uint) (string, error) {
	var llmConfig models.LLMConfig
	if err := s.db.First(&llmConfig, llmConfigID).Error; err != nil {
		return "", err
	}

	start := time.Now()
	req := CompletionRequest{Prompt: "Reply with the single word: ok", Purpose: models.PurposeConnectionTest}
	callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()
	result, err := s.callLLM(callCtx, &llmConfig, req)
	s.recordUsage(&llmConfig, req, result, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Text), nil
}
