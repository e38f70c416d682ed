package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/utils"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

const anthropicVersion = "bedrock-2023-05-31"

// Invoker is the subset of the Bedrock runtime client used here
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient implements core.ExternalModel with Amazon Bedrock
type BedrockClient struct {
	client        Invoker
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockClient creates a new Bedrock model client
func NewBedrockClient(
	client Invoker,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockClient {
	return &BedrockClient{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Classify asks the model for a triage verdict on one item
func (c *BedrockClient) Classify(ctx context.Context, req *core.ModelRequest) (*core.ModelVerdict, error) {
	prompt := c.textProcessor.TriagePrompt(req, c.maxBodySize)

	payload, err := c.requestBody(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke Bedrock model %s: %w", c.modelID, err)
	}

	text, err := c.responseText(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMalformedReply, err)
	}
	c.logger.Debug("Bedrock reply received", zap.String("item_id", req.Item.ID), zap.String("model", c.modelID))

	return utils.ParseVerdict(text)
}

func (c *BedrockClient) requestBody(prompt string) ([]byte, error) {
	switch {
	case c.isAnthropicModel():
		return json.Marshal(map[string]any{
			"anthropic_version": anthropicVersion,
			"max_tokens":        c.maxTokens,
			"temperature":       c.temperature,
			"top_p":             c.topP,
			"system":            utils.SystemPrompt,
			"messages": []map[string]any{
				{"role": "user", "content": prompt},
			},
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]any{
			"inputText": utils.SystemPrompt + "\n\n" + prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      utils.SystemPrompt + "\n\n" + prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
}

func (c *BedrockClient) responseText(body []byte) (string, error) {
	switch {
	case c.isAnthropicModel():
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("unmarshal Claude response: %w", err)
		}
		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String(), nil

	case c.isAmazonTitanModel():
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("unmarshal Titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return resp.Results[0].OutputText, nil

	default:
		var resp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return string(body), nil
		}
		for _, s := range []string{resp.Output, resp.Text, resp.Response} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}

func (c *BedrockClient) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic.claude")
}

func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}
