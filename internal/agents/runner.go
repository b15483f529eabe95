package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Invocation is one request to run an agent's prompts against a model.
type Invocation struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Input        any    `json:"input,omitempty"`
}

// Result is the agent's answer. Status is "complete" or "error"; Rationale
// carries the model's reasoning summary when the sidecar provides one.
type Result struct {
	Status    string `json:"status"`
	Result    any    `json:"result,omitempty"`
	Rationale string `json:"rationale,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Runner executes agent invocations. The model backend lives behind this
// interface; workflow execution only sees prompts in and a result out.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

const defaultRunTimeout = 5 * time.Minute

// HTTPRunner is a Runner backed by an agent sidecar over HTTP. It posts the
// invocation as JSON to the configured URL and decodes the Result.
type HTTPRunner struct {
	url    string
	client *http.Client
}

// NewHTTPRunner creates an HTTPRunner against the given base URL.
func NewHTTPRunner(url string) *HTTPRunner {
	return &HTTPRunner{
		url:    url,
		client: &http.Client{Timeout: defaultRunTimeout},
	}
}

// Run posts the invocation to the sidecar's /run endpoint.
func (r *HTTPRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	requestBody, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invocation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/run", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach agent runner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("agent runner returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode agent result: %w", err)
	}
	if result.Status == "" {
		result.Status = "complete"
	}

	return &result, nil
}

var _ Runner = (*HTTPRunner)(nil)
