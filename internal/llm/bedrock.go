// Package llm wraps Amazon Bedrock's Converse and InvokeModel APIs for the three models HYDRA's
// auxiliary subsystems consult: Claude 3.5 Haiku (flow classification), Nova Pro (sequence
// analysis), and Titan Embeddings V2 (sequence-matcher similarity search).
package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"
)

const (
	ClaudeHaikuModel  = "us.anthropic.claude-3-5-haiku-20241022-v1:0"
	NovaProModel      = "amazon.nova-pro-v1:0"
	TitanEmbedModel   = "amazon.titan-embed-text-v2:0"
	defaultRegion     = "us-east-1"
	embeddingDim      = 512
)

// Response is the normalized result of one model invocation.
type Response struct {
	Success   bool
	Content   string
	Model     string
	InputTokens  int32
	OutputTokens int32
	LatencyMS float64
	Err       error
}

// Client wraps a Bedrock runtime client; nil-safe when credentials are absent so every caller
// can fall back to a rule-based path without special-casing "no client".
type Client struct {
	runtime *bedrockruntime.Client
	log     zerolog.Logger
}

// New builds a Client from the ambient AWS config (env vars, shared config file, or IAM role).
// Never errors: when credentials can't be resolved, IsAvailable reports false and every call
// degrades to its caller's fallback path, matching bedrock_client.py's is_available property.
func New(ctx context.Context, region string, log zerolog.Logger) *Client {
	if region == "" {
		region = defaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Warn().Err(err).Msg("bedrock: no AWS config available, LLM features disabled")
		return &Client{log: log}
	}
	return &Client{runtime: bedrockruntime.NewFromConfig(cfg), log: log.With().Str("service", "bedrock").Logger()}
}

// IsAvailable reports whether a Bedrock runtime client was successfully constructed.
func (c *Client) IsAvailable() bool {
	return c != nil && c.runtime != nil
}

func (c *Client) converse(ctx context.Context, modelID, system, prompt string, maxTokens int32) Response {
	if !c.IsAvailable() {
		return Response{Model: modelID, Err: errUnavailable}
	}
	start := time.Now()

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(0.0),
		},
	}
	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}

	out, err := c.runtime.Converse(ctx, input)
	latency := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		c.log.Warn().Err(err).Str("model", modelID).Msg("bedrock converse failed")
		return Response{Model: modelID, LatencyMS: latency, Err: err}
	}

	var text string
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*types.ContentBlockMemberText); ok {
				text = tb.Value
				break
			}
		}
	}

	var inTok, outTok int32
	if out.Usage != nil {
		inTok = aws.ToInt32(out.Usage.InputTokens)
		outTok = aws.ToInt32(out.Usage.OutputTokens)
	}

	return Response{
		Success:      true,
		Content:      text,
		Model:        modelID,
		InputTokens:  inTok,
		OutputTokens: outTok,
		LatencyMS:    latency,
	}
}

// InvokeClaudeHaiku classifies short structured prompts (options-flow bias) with a fixed
// temperature-zero system/user message pair.
func (c *Client) InvokeClaudeHaiku(ctx context.Context, system, prompt string) Response {
	return c.converse(ctx, ClaudeHaikuModel, system, prompt, 200)
}

// InvokeNovaPro analyzes a richer candidate set (sequence matches) with a larger token budget.
func (c *Client) InvokeNovaPro(ctx context.Context, system, prompt string) Response {
	return c.converse(ctx, NovaProModel, system, prompt, 300)
}

type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns a Titan V2 embedding vector for text, or nil if the client is unavailable or the
// call fails — callers fall back to rule-based similarity in that case.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if !c.IsAvailable() {
		return nil
	}
	body, err := json.Marshal(titanEmbedRequest{InputText: text, Dimensions: embeddingDim, Normalize: true})
	if err != nil {
		return nil
	}
	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(TitanEmbedModel),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("bedrock titan embed failed")
		return nil
	}
	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil
	}
	return resp.Embedding
}

var errUnavailable = &unavailableError{}

type unavailableError struct{}

func (e *unavailableError) Error() string { return "bedrock client not initialized" }
