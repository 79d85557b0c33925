// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/config"
	"github.com/xkilldash9x/crust/internal/llmutil"
)

// contentGenerator is the subset of *genai.Models used by the client.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements schemas.Extractor on top of the Gemini structured
// output API. It holds no per-run state and is safe for concurrent use.
type GeminiClient struct {
	models      contentGenerator
	model       string
	temperature float32
	maxTokens   int32
	maxRetries  int
	limiter     *rate.Limiter
	logger      *zap.Logger

	// newBackOff is replaceable in tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

var _ schemas.Extractor = (*GeminiClient)(nil)

// NewGeminiClient wires a client for one model. The limiter may be shared
// between clients so all tiers draw from the same request budget.
func NewGeminiClient(models contentGenerator, model string, cfg config.LLMConfig, limiter *rate.Limiter, logger *zap.Logger) (*GeminiClient, error) {
	if models == nil {
		return nil, fmt.Errorf("gemini models service is required")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &GeminiClient{
		models:      models,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxOutputTokens),
		maxRetries:  cfg.MaxRetries,
		limiter:     limiter,
		logger:      logger.Named("llm_client.gemini").With(zap.String("model", model)),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}, nil
}

// Extract sends prompt with schema as the required response shape and decodes
// the answer into out. Transient transport failures are retried up to
// MaxRetries times; decoding failures are returned without retrying.
func (c *GeminiClient) Extract(ctx context.Context, prompt string, schema *schemas.Schema, out interface{}) error {
	genConfig := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temperature),
		MaxOutputTokens:  c.maxTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(schema),
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	operation := func() (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
		}

		startTime := time.Now()
		resp, err := c.models.GenerateContent(ctx, c.model, contents, genConfig)
		if err != nil {
			return "", c.classify(ctx, err)
		}

		text, err := responseText(resp)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		if usage := resp.UsageMetadata; usage != nil {
			c.logger.Debug("LLM generation complete",
				zap.Duration("duration", time.Since(startTime)),
				zap.Int32("prompt_tokens", usage.PromptTokenCount),
				zap.Int32("completion_tokens", usage.CandidatesTokenCount),
			)
		}
		return text, nil
	}

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		// Bounded by attempts and ctx only; v5 otherwise caps total time at 15m.
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Transient LLM error, retrying.", zap.Error(err), zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		return fmt.Errorf("gemini generate content: %w", err)
	}

	if err := llmutil.DecodeJSONResponse(text, out); err != nil {
		return err
	}
	return nil
}

// classify marks errors that retrying cannot fix as permanent.
func (c *GeminiClient) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		// Network level failure.
		return err
	}
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return err
	default:
		c.logger.Error("Gemini API returned a permanent error", zap.Int("status", code), zap.Error(err))
		return backoff.Permanent(err)
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("gemini API returned a nil response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini API blocked the prompt (Reason: %s)", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("gemini API returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

var schemaTypes = map[schemas.SchemaType]genai.Type{
	schemas.TypeObject:  genai.TypeObject,
	schemas.TypeString:  genai.TypeString,
	schemas.TypeInteger: genai.TypeInteger,
	schemas.TypeNumber:  genai.TypeNumber,
	schemas.TypeBoolean: genai.TypeBoolean,
	schemas.TypeArray:   genai.TypeArray,
}

// toGenaiSchema translates the provider-neutral schema. Property ordering
// follows Required so the model emits fields in a stable order.
func toGenaiSchema(s *schemas.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        schemaTypes[s.Type],
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
		out.PropertyOrdering = append([]string(nil), s.Required...)
	}
	return out
}
