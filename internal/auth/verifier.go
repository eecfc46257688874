// Package auth is the boundary to the identity provider. Session
// validation itself is the provider's job; this package only carries the
// bearer token to it and reports the verdict.
package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvmax/mediaforge/internal/domain"
)

type Verifier interface {
	// Verify returns the authenticated subject for a bearer token, or an
	// Unauthorized-coded error.
	Verify(ctx context.Context, token string) (string, error)
}

// Allow accepts every request. Used when AUTH_MODE=none.
type Allow struct{}

func (Allow) Verify(_ context.Context, _ string) (string, error) {
	return "anonymous", nil
}

// StaticVerifier accepts a single shared token. Development use only.
type StaticVerifier struct {
	Token string
}

func (v StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if v.Token == "" || subtle.ConstantTimeCompare([]byte(v.Token), []byte(token)) != 1 {
		return "", domain.NewError(domain.CodeUnauthorized, "invalid token")
	}
	return "static", nil
}

// RemoteVerifier asks the identity provider's verify endpoint whether a
// session token is valid.
type RemoteVerifier struct {
	endpoint   string
	httpClient *http.Client
}

func NewRemoteVerifier(endpoint string, timeout time.Duration) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteVerifier{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", domain.NewError(domain.CodeUnauthorized, "missing token")
	}

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return "", fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", domain.NewError(domain.CodeUnauthorized, "session rejected")
	default:
		return "", fmt.Errorf("identity provider returned status=%d", resp.StatusCode)
	}

	var verdict struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}
	if verdict.Subject == "" {
		return "", domain.NewError(domain.CodeUnauthorized, "session rejected")
	}
	return verdict.Subject, nil
}

// FromConfig picks the verifier for the configured mode.
func FromConfig(mode, endpoint, staticToken string, timeout time.Duration) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "none":
		return Allow{}, nil
	case "static":
		if staticToken == "" {
			return nil, fmt.Errorf("static auth mode requires a token")
		}
		return StaticVerifier{Token: staticToken}, nil
	case "remote":
		if strings.TrimSpace(endpoint) == "" {
			return nil, fmt.Errorf("remote auth mode requires a verify endpoint")
		}
		return NewRemoteVerifier(endpoint, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", mode)
	}
}
