package mediasession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// APITokenSource fetches room grants from the wavecall API token endpoint.
type APITokenSource struct {
	baseURL      string
	sessionToken string
	httpClient   *http.Client
}

// Option customises token source instantiation.
type Option func(*APITokenSource)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(s *APITokenSource) {
		if h != nil {
			s.httpClient = h
		}
	}
}

// NewAPITokenSource constructs a TokenSource backed by the API. The session
// token authenticates the caller on each request.
func NewAPITokenSource(base, sessionToken string, opts ...Option) (*APITokenSource, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:1284"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	src := &APITokenSource{
		baseURL:      strings.TrimRight(trimmed, "/"),
		sessionToken: strings.TrimSpace(sessionToken),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(src)
	}
	return src, nil
}

// Token requests a grant for the named room.
func (s *APITokenSource) Token(ctx context.Context, roomName string) (Grant, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(map[string]string{"roomName": roomName})
	if err != nil {
		return Grant{}, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/livekit/token", bytes.NewReader(payload))
	if err != nil {
		return Grant{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.sessionToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Grant{}, APIError{Status: resp.StatusCode, Message: extractMessage(resp.Body)}
	}

	var grant Grant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return Grant{}, fmt.Errorf("decode response: %w", err)
	}
	if grant.Token == "" {
		return Grant{}, fmt.Errorf("empty token in response")
	}
	return grant, nil
}

func extractMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Message)
}
