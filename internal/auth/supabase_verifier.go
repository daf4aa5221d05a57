package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseVerifier checks an access token by asking the Supabase auth server
// who it belongs to.
type SupabaseVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type supabaseUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func NewSupabaseVerifier(baseURL, apiKey string) *SupabaseVerifier {
	return &SupabaseVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, fmt.Errorf("%w: token is required", ErrInvalidToken)
	}
	if v.baseURL == "" {
		return Claims{}, fmt.Errorf("supabase url is not configured")
	}
	if v.apiKey == "" {
		return Claims{}, fmt.Errorf("supabase api key is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return Claims{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Claims{}, fmt.Errorf("supabase auth request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Claims{}, fmt.Errorf("%w: status %d: %s", ErrInvalidToken, resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Claims{}, fmt.Errorf("token verification failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user supabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return Claims{}, fmt.Errorf("decode supabase user: %w", err)
	}
	if user.ID == "" {
		return Claims{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return Claims{Subject: user.ID, Email: user.Email, Role: user.Role}, nil
}
