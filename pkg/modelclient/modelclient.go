// Package modelclient implements the ModelClient collaborator: invokes the
// external image-generation model under a bounded deadline and decodes its
// response. The teacher repo has no HTTP-client-to-external-model analogue;
// grounded on the bounded-context/timeout idiom used throughout the teacher's
// handlers (context.WithTimeout before a blocking call) generalised to an
// HTTP round trip.
package modelclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verseforge/verseforge/internal/apierr"
)

const (
	defaultWidth  = 1024
	defaultHeight = 1024
	defaultSteps  = 4
)

// Result is the decoded model response.
type Result struct {
	ImageBytes []byte
	Format     string
	Width      int
	Height     int
	Duration   time.Duration
}

// RunOptions are the optional generation parameters (spec §4.4).
type RunOptions struct {
	Steps  int
	Seed   *int64
	Width  int
	Height int
}

// ModelClient invokes the external image-generation model.
type ModelClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	timeout    time.Duration
}

// New creates a ModelClient bounded by timeout (spec: 30s default deadline).
func New(endpoint, apiKey string, timeout time.Duration) *ModelClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ModelClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

type runRequest struct {
	Prompt string `json:"prompt"`
	Steps  int    `json:"steps"`
	Seed   *int64 `json:"seed,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type runResponse struct {
	ImageBase64 string `json:"image_base64"`
	Format      string `json:"format"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Run invokes the model, bounded by the client's configured timeout (30
// seconds by default; spec §4.4). The caller's context is intersected with
// that deadline so upstream
// cancellation still propagates.
func (m *ModelClient) Run(ctx context.Context, prompt string, opts RunOptions) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	width, height, steps := opts.Width, opts.Height, opts.Steps
	if width == 0 {
		width = defaultWidth
	}
	if height == 0 {
		height = defaultHeight
	}
	if steps == 0 {
		steps = defaultSteps
	}

	body, err := json.Marshal(runRequest{Prompt: prompt, Steps: steps, Seed: opts.Seed, Width: width, Height: height})
	if err != nil {
		return Result{}, apierr.Internal("encoding model request", err)
	}

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, apierr.Internal("building model request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if cctx.Err() != nil {
			return Result{}, apierr.Wrap(apierr.CodeAIServiceTimeout, "model invocation timed out", err)
		}
		return Result{}, apierr.Wrap(apierr.CodeModelInferenceFailed, "model invocation failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, apierr.Wrap(apierr.CodeModelInferenceFailed, "reading model response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, apierr.New(apierr.CodeModelInferenceFailed, fmt.Sprintf("model returned status %d", resp.StatusCode))
	}

	var parsed runResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.ImageBase64 == "" {
		return Result{}, apierr.New(apierr.CodeModelInferenceFailed, "malformed model response")
	}

	imageBytes, err := base64.StdEncoding.DecodeString(parsed.ImageBase64)
	if err != nil {
		return Result{}, apierr.New(apierr.CodeModelInferenceFailed, "malformed base64 image payload")
	}

	return Result{
		ImageBytes: imageBytes,
		Format:     parsed.Format,
		Width:      parsed.Width,
		Height:     parsed.Height,
		Duration:   duration,
	}, nil
}
