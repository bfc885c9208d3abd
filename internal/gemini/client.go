// Package gemini is a thin REST client for a Gemini-style generateContent
// endpoint: instruction text plus inline document bytes in, a candidate list
// with nested text parts out. Only the first candidate's text is consulted.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/trace"
)

// Config for the model client.
type Config struct {
	BaseURL     string // default https://generativelanguage.googleapis.com/v1beta
	Model       string // e.g. "gemini-1.5-pro"
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Wire shapes for the generateContent envelope.
type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type generationConfig struct {
	Temperature float32 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateContent sends the instruction and document bytes to the model and
// returns the first candidate's answer text. Non-2xx transport status maps to
// ErrUpstream; a 2xx response without answer text maps to ErrMissingContent.
// No retries: a failed call is a failed invocation.
func (c *Client) GenerateContent(ctx context.Context, token, instruction string, document []byte, mimeType string, tr *trace.Trace) (string, error) {
	body := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: instruction},
				{InlineData: &inlineData{
					MIMEType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(document),
				}},
			},
		}},
		GenerationConfig: &generationConfig{Temperature: c.cfg.Temperature},
	}

	bs, err := json.Marshal(body)
	if err != nil {
		return "", common.NewAppError("UPSTREAM_ERROR", "encoding model request", fmt.Errorf("%w: %w", common.ErrUpstream, err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", common.NewAppError("UPSTREAM_ERROR", "building model request", fmt.Errorf("%w: %w", common.ErrUpstream, err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	tr.Info("model.request", "model", c.cfg.Model, "instruction_len", len(instruction),
		"document_bytes", len(document), "mime_type", mimeType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		tr.Error("model.send_failed", "error", err.Error())
		return "", common.NewAppError("UPSTREAM_ERROR", "model call failed", fmt.Errorf("%w: %w", common.ErrUpstream, err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("model.body_close_error", "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	elapsed := time.Since(start).Milliseconds()
	tr.Info("model.response", "status", resp.StatusCode, "bytes", len(raw), "elapsed_ms", elapsed)

	if resp.StatusCode/100 != 2 {
		return "", common.NewAppError("UPSTREAM_ERROR",
			fmt.Sprintf("model endpoint status %d: %s", resp.StatusCode, excerpt(raw, 300)),
			common.ErrUpstream)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", common.NewAppError("MISSING_CONTENT", "decoding model response", fmt.Errorf("%w: %w", common.ErrMissingContent, err))
	}

	text := firstText(out)
	if strings.TrimSpace(text) == "" {
		tr.Error("model.no_answer_text", "candidates", len(out.Candidates))
		return "", common.NewAppError("MISSING_CONTENT", "model response contained no answer text", common.ErrMissingContent)
	}

	tr.Success("model.answer.ok", "answer_len", len(text), "elapsed_ms", elapsed)
	return text, nil
}

func firstText(r generateResponse) string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func excerpt(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
