package auth

import (
	"context"
	"errors"
	"time"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/config"
)

// ErrInvalidToken is returned for tokens that were checked and rejected, as
// opposed to verification that could not run.
var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Subject string
	Email   string
	Role    string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// NewVerifierFromConfig verifies tokens locally when the project JWT secret is
// configured and falls back to asking Supabase otherwise. Remote results are
// cached briefly.
func NewVerifierFromConfig(cfg config.Config) Verifier {
	if cfg.SupabaseJWTSecret != "" {
		return NewJWTVerifier(cfg.SupabaseJWTSecret, DefaultAudience)
	}
	return NewCachingVerifier(NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseSecretKey), time.Minute, 10000)
}
