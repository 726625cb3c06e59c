// Package llmclient issues metadata-extraction and relation-extraction
// calls against a configured LLM endpoint, sharing the same resilience
// stack (retry policy, circuit breaker) as the embedding generator.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/docforge/ingestproc/internal/errkind"
	"github.com/docforge/ingestproc/internal/retrypolicy"
)

// Provider selects the wire dialect.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderVLLM   Provider = "vllm"
	ProviderOllama Provider = "ollama"
)

type Config struct {
	Provider       Provider
	APIBase        string
	Model          string
	RequestTimeout int // seconds
	VLLMPriority   int
}

// Client issues the two request types the enrichment worker needs:
// metadata extraction and relation extraction. Both return the raw body
// alongside the parsed result so callers can persist the audit log even on
// a parse failure.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retrypolicy.Policy
	breaker    *gobreaker.CircuitBreaker
}

func New(cfg Config) *Client {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	policy := retrypolicy.Default()
	policy.Classify = errkind.Classify

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llmclient:" + cfg.APIBase,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
	})

	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}, policy: policy, breaker: breaker}
}

// Result carries the raw body alongside extracted token usage for the
// audit log, regardless of whether downstream parsing of that body
// succeeds.
type Result struct {
	RawResponse      string
	PromptTokens     int
	CompletionTokens int
}

var jsonOutputTag = regexp.MustCompile(`(?s)<json_output>(.*?)</json_output>`)

// MetadataOutput is the sanctioned shape inside <json_output>...</json_output>.
type MetadataOutput struct {
	Summary  string              `json:"summary,omitempty"`
	Keywords []string            `json:"keywords,omitempty"`
	Entities map[string][]string `json:"entities,omitempty"`
}

// ExtractMetadata issues a metadata-extraction completion and parses the
// tagged JSON block out of the response.
func (c *Client) ExtractMetadata(ctx context.Context, systemPrompt, userPrompt string) (*MetadataOutput, Result, error) {
	res, err := c.complete(ctx, systemPrompt, userPrompt, false)
	if err != nil {
		return nil, res, err
	}

	m := jsonOutputTag.FindStringSubmatch(res.RawResponse)
	if m == nil {
		return nil, res, errkind.New("llm_metadata_tag_missing", "response missing <json_output> tag", errkind.Malformed)
	}

	var out MetadataOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &out); err != nil {
		return nil, res, errkind.New("llm_metadata_parse", fmt.Sprintf("invalid json_output payload: %v", err), errkind.Malformed)
	}
	return &out, res, nil
}

// RelationCandidate is the unsanitized shape the LLM returns for each
// relation; sanitization happens in the enrichment worker.
type RelationCandidate struct {
	Subject     string `json:"subject"`
	SubjectType string `json:"subject_type"`
	Relation    string `json:"relation"`
	Object      string `json:"object"`
	ObjectType  string `json:"object_type"`
}

// ExtractRelations issues a relation-extraction completion and parses the
// returned JSON array, requiring a format:"json" hint for Ollama.
func (c *Client) ExtractRelations(ctx context.Context, systemPrompt, userPrompt string) ([]RelationCandidate, Result, error) {
	res, err := c.complete(ctx, systemPrompt, userPrompt, true)
	if err != nil {
		return nil, res, err
	}

	var candidates []RelationCandidate
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.RawResponse)), &candidates); err != nil {
		return nil, res, errkind.New("llm_relations_parse", fmt.Sprintf("invalid relations array: %v", err), errkind.Malformed)
	}
	return candidates, res, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, wantJSON bool) (Result, error) {
	var body []byte
	var url string
	var err error

	switch c.cfg.Provider {
	case ProviderOllama:
		url = c.cfg.APIBase + "/api/generate"
		body, err = json.Marshal(ollamaRequest{
			Model: c.cfg.Model, System: systemPrompt, Prompt: userPrompt, Stream: false,
			Options: map[string]any{"temperature": 0},
			Format:  formatOrEmpty(wantJSON),
		})
	default: // openai, vllm
		url = c.cfg.APIBase + "/v1/chat/completions"
		req := openAIChatRequest{
			Model: c.cfg.Model,
			Messages: []openAIMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			Temperature: 0,
			Stream:      false,
		}
		if c.cfg.Provider == ProviderVLLM && c.cfg.VLLMPriority != 0 {
			req.Priority = &c.cfg.VLLMPriority
		}
		body, err = json.Marshal(req)
	}
	if err != nil {
		return Result{}, fmt.Errorf("encode llm request: %w", err)
	}

	var result Result
	execErr := c.policy.Execute(ctx, func(ctx context.Context) error {
		_, breakerErr := c.breaker.Execute(func() (interface{}, error) {
			raw, status, reqErr := c.post(ctx, url, body)
			if reqErr != nil {
				return nil, reqErr
			}
			if status < 200 || status >= 300 {
				return nil, errkind.New("llm_http_error", fmt.Sprintf("status %d: %s", status, string(raw)),
					errkind.ClassifyHTTPStatus(status))
			}

			text, promptTok, completionTok, parseErr := parseCompletionEnvelope(c.cfg.Provider, raw)
			if parseErr != nil {
				return nil, parseErr
			}
			result = Result{RawResponse: text, PromptTokens: promptTok, CompletionTokens: completionTok}
			return nil, nil
		})
		return breakerErr
	})

	return result, execErr
}

// Ping verifies the configured endpoint is reachable, for use as a health
// dependency probe. It treats any HTTP response, even an error status, as
// reachable since not every provider exposes a dedicated health route; only
// a transport failure counts as down.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase, nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach llm endpoint: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, errkind.Wrap(err, "llm_transport", errkind.Transient).WithOperation("llmclient", "call llm endpoint")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read llm response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
	Priority    *int            `json:"priority,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
	Format  string         `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func formatOrEmpty(wantJSON bool) string {
	if wantJSON {
		return "json"
	}
	return ""
}

func parseCompletionEnvelope(provider Provider, raw []byte) (text string, promptTokens, completionTokens int, err error) {
	if provider == ProviderOllama {
		var r ollamaResponse
		if uerr := json.Unmarshal(raw, &r); uerr != nil {
			return "", 0, 0, errkind.New("llm_envelope_parse", fmt.Sprintf("decode ollama response: %v", uerr), errkind.Malformed)
		}
		return r.Response, r.PromptEvalCount, r.EvalCount, nil
	}

	var r openAIChatResponse
	if uerr := json.Unmarshal(raw, &r); uerr != nil {
		return "", 0, 0, errkind.New("llm_envelope_parse", fmt.Sprintf("decode chat completion response: %v", uerr), errkind.Malformed)
	}
	if len(r.Choices) == 0 {
		return "", 0, 0, errkind.New("llm_envelope_empty", "chat completion returned no choices", errkind.Malformed)
	}
	return r.Choices[0].Message.Content, r.Usage.PromptTokens, r.Usage.CompletionTokens, nil
}
