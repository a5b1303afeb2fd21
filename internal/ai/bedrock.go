package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/settings"
)

const defaultBedrockModel = "anthropic.claude-3-sonnet-20240229-v1:0"

// bedrockInvoker is the InvokeModel surface of the Bedrock runtime
// client, split out so tests can stub it.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockAnalyzer generates analysis through AWS Bedrock so the report
// data never leaves the AWS account.
type BedrockAnalyzer struct {
	client  bedrockInvoker
	modelID string
}

// NewBedrockAnalyzer creates the adapter using the default AWS
// credential chain.
func NewBedrockAnalyzer(ctx context.Context, cfg config.AIConfig, src SettingsSource) (*BedrockAnalyzer, error) {
	region := cfg.Region
	if region == "" && src != nil {
		region = strings.TrimSpace(src.Get(settings.KeyAWSRegion))
	}
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	modelID := cfg.Model
	if src != nil {
		if m := strings.TrimSpace(src.Get(settings.KeyAIModel)); m != "" {
			modelID = m
		}
	}
	if modelID == "" {
		modelID = defaultBedrockModel
	}

	return &BedrockAnalyzer{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
	}, nil
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Analyze invokes the model and returns the generated markdown.
func (b *BedrockAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        2000,
		System:           systemPrompt,
		Messages: []bedrockMessage{
			{
				Role:    "user",
				Content: []bedrockContentBlock{{Type: "text", Text: buildUserPrompt(req)}},
			},
		},
	})
	if err != nil {
		return "", err
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("parsing bedrock response: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("bedrock response contained no text")
	}
	return text.String(), nil
}
