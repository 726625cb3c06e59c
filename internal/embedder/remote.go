package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/docforge/ingestproc/internal/errkind"
)

// RemoteEmbedder POSTs to a configured HTTP endpoint using one of two wire
// dialects. It is also what backs the "local" variant, since a Go process
// has no in-process tensor runtime to host a model directly — "local"
// means a model server on loopback speaking the same dialects.
type RemoteEmbedder struct {
	cfg        Config
	httpClient *http.Client
	resilient  *resilientClient
	dimension  int
}

// oomSignature is checked against a non-2xx response body when the status
// code alone (429/507) doesn't already signal resource exhaustion.
const oomSignature = "CUDA out of memory"

func NewRemoteEmbedder(cfg Config) *RemoteEmbedder {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		resilient:  newResilientClient("embedder:"+cfg.Endpoint, cfg.QPSLimit),
	}
}

func (e *RemoteEmbedder) Dimension() int { return e.dimension }

// Probe issues a one-text request to discover the embedding dimension at
// startup, so it can be compared against the persisted EmbeddingConfig.
func (e *RemoteEmbedder) Probe(ctx context.Context) (int, error) {
	vecs, err := e.Encode(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vecs) == 0 {
		return 0, fmt.Errorf("probe returned no vectors")
	}
	e.dimension = len(vecs[0])
	return e.dimension, nil
}

func (e *RemoteEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result [][]float32
	err := e.resilient.do(ctx, func() error {
		var err error
		if e.cfg.Dialect == "ollama" {
			result, err = e.encodeOllama(ctx, texts)
		} else {
			result, err = e.encodeOpenAI(ctx, texts)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *RemoteEmbedder) encodeOpenAI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	body, status, err := e.post(ctx, e.cfg.Endpoint+"/embeddings", reqBody)
	if err != nil {
		return nil, err
	}
	if statusErr := classifyStatus(status, body); statusErr != nil {
		return nil, statusErr
	}

	var parsed openAIEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errkind.New("embed_parse", fmt.Sprintf("decode embedding response: %v", err), errkind.Malformed)
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *RemoteEmbedder) encodeOllama(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.cfg.Model, Prompt: text})
		if err != nil {
			return nil, fmt.Errorf("encode ollama embedding request: %w", err)
		}

		body, status, err := e.post(ctx, e.cfg.Endpoint+"/api/embeddings", reqBody)
		if err != nil {
			return nil, err
		}
		if statusErr := classifyStatus(status, body); statusErr != nil {
			return nil, statusErr
		}

		var parsed ollamaEmbedResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, errkind.New("embed_parse", fmt.Sprintf("decode ollama embedding response: %v", err), errkind.Malformed)
		}
		vectors[i] = parsed.Embedding
	}
	return vectors, nil
}

func (e *RemoteEmbedder) post(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, errkind.Wrap(err, "embed_transport", errkind.Transient).WithOperation("embedder", "call embedding endpoint")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read embedding response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// classifyStatus maps a non-2xx status (or an embedded OOM signature) to a
// classified error; nil means the call succeeded.
func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if status == 507 || status == 429 || strings.Contains(string(body), oomSignature) {
		return errkind.New("embed_oom", string(body), errkind.ResourceExhaustion)
	}
	return errkind.New("embed_http_error", fmt.Sprintf("status %d: %s", status, string(body)),
		errkind.ClassifyHTTPStatus(status))
}
