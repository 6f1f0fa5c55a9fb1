// Package apiclient talks to the vochat server on behalf of the desktop app.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vochat/internal/domain"
	"vochat/internal/ports"
)

const DefaultTimeout = 20 * time.Second

// Config points the client at a server.
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// Client issues transcription tokens and refinements. It satisfies
// ports.TokenSource, ports.Refiner and ports.Authenticator.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   strings.TrimSpace(cfg.APIToken),
		http:    httpClient,
	}
}

// Authenticated reports whether an API token is configured.
func (c *Client) Authenticated() bool {
	return c.token != "" && c.baseURL != ""
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	Limits    struct {
		WeeklyRefineWordsRemaining int  `json:"weeklyRefineWordsRemaining"`
		IsPro                      bool `json:"isPro"`
	} `json:"limits"`
}

// STTToken requests a transcription credential. It makes a single attempt.
func (c *Client) STTToken(ctx context.Context, provider string, profileID string) (ports.STTToken, error) {
	var out tokenResponse
	err := c.post(ctx, "/api/stt/token", map[string]string{"provider": provider, "profileId": profileID}, &out)
	if err != nil {
		return ports.STTToken{}, err
	}

	expires, err := time.Parse(time.RFC3339, out.ExpiresAt)
	if err != nil {
		expires = time.Time{}
	}
	return ports.STTToken{
		Token:     out.Token,
		ExpiresAt: expires,
		Remaining: out.Limits.WeeklyRefineWordsRemaining,
		IsPro:     out.Limits.IsPro,
	}, nil
}

type refineResponse struct {
	RefinedText string `json:"refinedText"`
	WordCount   int    `json:"wordCount"`
	Cached      bool   `json:"cached"`
}

// Refine asks the server to polish a transcript. Server and network failures
// are reported as refinement unavailable.
func (c *Client) Refine(ctx context.Context, req ports.RefineRequest) (ports.RefineResult, error) {
	body := map[string]string{
		"clientSessionId": req.ClientSessionID,
		"profileId":       req.ProfileID,
		"rawText":         req.RawText,
		"mode":            req.Mode,
	}
	var out refineResponse
	if err := c.post(ctx, "/api/refine", body, &out); err != nil {
		if domain.KindOf(err) == "" {
			return ports.RefineResult{}, domain.NewError(domain.KindRefinementUnavailable, "refinement request failed", err)
		}
		return ports.RefineResult{}, err
	}
	return ports.RefineResult{RefinedText: out.RefinedText, WordCount: out.WordCount, Cached: out.Cached}, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Limit int    `json:"limit"`
	Used  int    `json:"used"`
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	if !c.Authenticated() {
		return domain.NewError(domain.KindUnauthorized, "not signed in", nil)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(path, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

func statusError(path string, status int, data []byte) error {
	var body errorResponse
	_ = json.Unmarshal(data, &body)
	message := body.Error
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return domain.NewError(domain.KindUnauthorized, message, nil)
	case status == http.StatusPaymentRequired:
		return &domain.QuotaExceededError{Used: body.Used, Limit: body.Limit}
	case status == http.StatusBadRequest:
		return domain.NewError(domain.KindBadRequest, message, nil)
	case status == http.StatusBadGateway:
		return domain.NewError(domain.KindRefinementUnavailable, message, nil)
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", path, status, message)
	}
}
