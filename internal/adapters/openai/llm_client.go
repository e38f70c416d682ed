package openai

import (
	"context"
	"fmt"

	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient implements core.ExternalModel with the chat completions API
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIClient creates a new OpenAI model client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Classify asks the model for a triage verdict on one item
func (c *OpenAIClient) Classify(ctx context.Context, req *core.ModelRequest) (*core.ModelVerdict, error) {
	prompt := c.textProcessor.TriagePrompt(req, c.maxBodySize)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: utils.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response from OpenAI", core.ErrMalformedReply)
	}

	c.logger.Debug("OpenAI reply received",
		zap.String("item_id", req.Item.ID),
		zap.String("model", c.modelName),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return utils.ParseVerdict(resp.Choices[0].Message.Content)
}
